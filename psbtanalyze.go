// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/psbtanalyze/analysis"
	"github.com/btcsuite/btcd/psbtanalyze/internal/log"
	"github.com/btcsuite/btcd/psbtanalyze/internal/sanity"
	"github.com/btcsuite/btcd/psbtanalyze/internal/version"
	"github.com/btcsuite/btcd/psbtanalyze/psbtjson"
	"github.com/btcsuite/btcd/psbtanalyze/resolver"
	"github.com/davecgh/go-spew/spew"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/crypto/ssh/terminal"
)

// maxPacketLine is the longest line accepted when reading packets as text.
const maxPacketLine = 16 * 1024 * 1024

// psbtMagic starts every serialized packet.
var psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

var psbtLog = log.PsbtLog

// errDecodeFailed is returned when at least one packet could not be decoded.
var errDecodeFailed = errors.New("one or more packets could not be decoded")

// packetSource is an undecoded packet and where it came from.
type packetSource struct {
	name string
	data []byte
	raw  bool
}

// newAnalyzer returns the analyzer configured by cfg.
func newAnalyzer(cfg *config) *analysis.Analyzer {
	var scripts analysis.ScriptResolver = resolver.New()
	if cfg.CacheSize > 0 {
		scripts = resolver.NewCachingResolver(scripts, cfg.CacheSize)
	}
	return analysis.New(&analysis.Config{
		Resolver: scripts,
		Workers:  cfg.Workers,
	})
}

// decodePacket decodes a packet given as hex or base64 text, or in its raw
// binary serialization.
func decodePacket(src *packetSource) (*psbt.Packet, error) {
	if src.raw {
		return psbt.NewFromRawBytes(bytes.NewReader(src.data), false)
	}

	text := strings.TrimSpace(string(src.data))
	if raw, err := hex.DecodeString(text); err == nil {
		return psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	}
	return psbt.NewFromRawBytes(strings.NewReader(text), true)
}

// readLines returns every non-empty line of r as a packet source.
func readLines(r io.Reader, name string) ([]packetSource, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPacketLine)

	var sources []packetSource
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		sources = append(sources, packetSource{
			name: fmt.Sprintf("%s:%d", name, line),
			data: []byte(text),
		})
	}
	return sources, scanner.Err()
}

// readPackets collects the packets to analyze from the command line
// arguments, the configured file or standard input, in that order of
// preference.
func readPackets(cfg *config, args []string, stdin *os.File) ([]packetSource, error) {
	if len(args) > 0 {
		sources := make([]packetSource, 0, len(args))
		for i, arg := range args {
			sources = append(sources, packetSource{
				name: fmt.Sprintf("argument %d", i+1),
				data: []byte(arg),
			})
		}
		return sources, nil
	}

	if cfg.File != "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		if bytes.HasPrefix(data, psbtMagic) {
			return []packetSource{{name: cfg.File, data: data, raw: true}}, nil
		}
		return readLines(bytes.NewReader(data), cfg.File)
	}

	if terminal.IsTerminal(int(stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Enter packets as base64 or hex, one "+
			"per line.  End with Ctrl+D.")
	}
	return readLines(stdin, "stdin")
}

// analyzePackets decodes, analyzes and reports every source to w.  Decoding
// failures are logged and do not stop the batch, but are reported through
// the returned error.
func analyzePackets(cfg *config, sources []packetSource, w io.Writer,
	interrupt <-chan struct{}) error {

	analyzer := newAnalyzer(cfg)

	var failed int
	for i := range sources {
		if interruptRequested(interrupt) {
			psbtLog.Infof("Skipping %d remaining %s", len(sources)-i,
				log.PickNoun(uint64(len(sources)-i), "packet", "packets"))
			break
		}

		src := &sources[i]
		packet, err := decodePacket(src)
		if err != nil {
			psbtLog.Errorf("Unable to decode packet from %s: %v",
				src.name, err)
			failed++
			continue
		}
		if cfg.Dump {
			spew.Fdump(w, packet)
		}

		a := analyzer.Analyze(packet)
		if cfg.JSON {
			result := psbtjson.NewAnalyzePsbtResult(a)
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", out)
			continue
		}
		writeReport(w, src.name, packet, a)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errDecodeFailed, failed,
			len(sources))
	}
	return nil
}

// psbtAnalyzeMain is the real main function for psbtanalyze.  It is necessary
// to work around the fact that deferred functions do not run when os.Exit()
// is called.
func psbtAnalyzeMain() error {
	cfg, args, err := loadConfig(os.Args[1:])
	switch {
	case errors.Is(err, errShowVersion):
		fmt.Printf("psbtanalyze version %s\n", version.String())
		return nil

	case errors.Is(err, errShowSubsystems):
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		return nil

	case err != nil:
		return err
	}
	defer func() {
		if log.LogRotator != nil {
			log.LogRotator.Close()
		}
	}()

	if err := sanity.Check(); err != nil {
		psbtLog.Criticalf("Environment unusable: %v", err)
		return err
	}

	interrupt := interruptListener()

	sources, err := readPackets(cfg, args, os.Stdin)
	if err != nil {
		psbtLog.Errorf("Unable to read packets: %v", err)
		return err
	}
	psbtLog.Debugf("Analyzing %d %s for %s", len(sources),
		log.PickNoun(uint64(len(sources)), "packet", "packets"),
		activeNetParams.Name)

	if err := analyzePackets(cfg, sources, os.Stdout, interrupt); err != nil {
		psbtLog.Error(err)
		return err
	}
	return nil
}

func main() {
	if err := psbtAnalyzeMain(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
