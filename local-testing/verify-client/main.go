package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/verifier/client"
)

type commandFlags struct {
	gatewayURL string
	action     string

	proofFile string
	vkFile    string
	vmFile    string
	pubInput  string
	timeout   time.Duration
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() commandFlags {
	var flags commandFlags
	flag.StringVar(&flags.gatewayURL, "gateway", "http://127.0.0.1:8080", "Verification gateway base URL")
	flag.StringVar(&flags.action, "action", "verify", "Action to perform: verify|identity")

	flag.StringVar(&flags.proofFile, "proof", "", "File holding the proof bytes")
	flag.StringVar(&flags.vkFile, "vk", "", "File holding the verification key bytes")
	flag.StringVar(&flags.vmFile, "vm-program", "", "File holding the VM program code (SP1/Risc0)")
	flag.StringVar(&flags.pubInput, "pub-input", "18", "Public input as comma-separated byte values or 0x-hex")
	flag.DurationVar(&flags.timeout, "timeout", 15*time.Minute, "Give up waiting for the gateway after this long")

	flag.Parse()

	if flags.action == "verify" && flags.proofFile == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nmissing required flag: -proof")
		os.Exit(2)
	}

	return flags
}

func run(cfg commandFlags) error {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	gw, err := client.NewHTTPClient(cfg.gatewayURL, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	switch cfg.action {
	case "identity":
		id, err := gw.Identity(ctx)
		if err != nil {
			return err
		}
		return printJSON(id)
	case "verify":
		return verify(ctx, gw, cfg, logger)
	default:
		return fmt.Errorf("unknown action %q", cfg.action)
	}
}

func verify(ctx context.Context, gw *client.HTTPClient, cfg commandFlags, logger zerolog.Logger) error {
	req := client.ProofRequest{}

	var err error
	if req.Proof, err = readBytes(cfg.proofFile); err != nil {
		return fmt.Errorf("read proof: %w", err)
	}
	if cfg.vkFile != "" {
		if req.VerificationKey, err = readBytes(cfg.vkFile); err != nil {
			return fmt.Errorf("read verification key: %w", err)
		}
	}
	if cfg.vmFile != "" {
		if req.VMProgramCode, err = readBytes(cfg.vmFile); err != nil {
			return fmt.Errorf("read vm program: %w", err)
		}
	}
	if req.PublicInput, err = parsePubInput(cfg.pubInput); err != nil {
		return fmt.Errorf("parse pub input: %w", err)
	}

	res, err := gw.Verify(ctx, req)
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		logger.Error().
			Int("status_code", res.StatusCode).
			Str("error_kind", res.ErrorKind).
			Msg(res.ErrorMessage())
		return errors.New("verification failed")
	}
	return nil
}

// readBytes reads a raw proof file. Files holding a JSON byte array or a
// 0x-hex string are decoded.
func readBytes(path string) (aligned.Bytes, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "\"") {
		var b aligned.Bytes
		if err := json.Unmarshal([]byte(trimmed), &b); err != nil {
			return nil, err
		}
		return b, nil
	}
	if strings.HasPrefix(trimmed, "0x") {
		return aligned.ParseBytes(trimmed)
	}
	return raw, nil
}

func parsePubInput(s string) (aligned.Bytes, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") {
		return aligned.ParseBytes(s)
	}
	var b aligned.Bytes
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, err
		}
		b = append(b, byte(v))
	}
	return b, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
