// Command dccl describes schemas and encodes or decodes messages from the
// command line.
//
//	dccl describe -schemas nav.toml
//	echo '{"a": 9, "b": 2}' | dccl encode -schemas nav.toml -id 1
//	echo 000198 | dccl decode -schemas nav.toml -format yaml
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dccl/go-dccl/internal/config"
	"github.com/dccl/go-dccl/internal/logging"
	"github.com/dccl/go-dccl/internal/metrics"
	"github.com/dccl/go-dccl/internal/render"
	"github.com/dccl/go-dccl/internal/wasm"
	"github.com/dccl/go-dccl/pkg/dccl/algorithm"
	"github.com/dccl/go-dccl/pkg/dccl/codec"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

const usage = `usage: dccl <describe|encode|decode> [flags]

  describe   print the layout, size and fingerprint of every schema
  encode     read a document from stdin and print the encoded message as hex
  decode     read hex from stdin and print the decoded document
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "dccl: %v\n", err)
		os.Exit(1)
	}
}

// options holds the flags shared by every command.
type options struct {
	configPath string
	schemas    string
	format     string
	id         int64
	metrics    bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}
	cmd := args[0]

	var opts options
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "config file (yaml)")
	fs.StringVar(&opts.schemas, "schemas", "", "comma-separated schema description files (toml|yaml)")
	fs.StringVar(&opts.format, "format", "json", "document format: "+strings.Join(render.Names(), "|"))
	fs.Int64Var(&opts.id, "id", -1, "encode: schema id of a bare fields document")
	fs.BoolVar(&opts.metrics, "metrics", false, "print codec metrics to stderr on exit")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch cmd {
	case "describe", "encode", "decode":
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	app, err := newApp(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	switch cmd {
	case "describe":
		err = app.describe(stdout)
	case "encode":
		err = app.encode(stdin, stdout)
	case "decode":
		err = app.decode(stdin, stdout)
	}
	if opts.metrics {
		app.printMetrics(stderr)
	}
	return err
}

// app is the wired codec stack for one invocation.
type app struct {
	opts     options
	logger   *zap.Logger
	registry *schema.Registry
	codec    *codec.Codec
	runtime  *wasm.Runtime
	metrics  *prometheus.Registry
}

func newApp(ctx context.Context, opts options, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.schemas != "" {
		for _, p := range strings.Split(opts.schemas, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Schemas = append(cfg.Schemas, p)
			}
		}
	}

	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, err
	}

	registry, err := schema.NewRegistry(schema.WithLimits(cfg.Limits()), schema.WithLogger(logging.Named(logger, logging.ComponentSchema)))
	if err != nil {
		return nil, err
	}
	var all []*schema.Schema
	for _, path := range cfg.Schemas {
		loaded, err := schema.LoadFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, loaded...)
	}
	if err := registry.RegisterAll(all); err != nil {
		return nil, err
	}
	registry.Freeze()

	a := &app{opts: opts, logger: logger, registry: registry, metrics: prometheus.NewRegistry()}

	algorithms := algorithm.Builtins()
	if len(cfg.Algorithms) > 0 {
		a.runtime = wasm.NewRuntime(ctx, cfg.WASMRuntimeConfig(), logging.Named(logger, logging.ComponentWASM))
		if err := loadAlgorithms(ctx, a.runtime, cfg.Algorithms, algorithms); err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	recorder := metrics.NewPrometheus(a.metrics)
	if err := recorder.Register(); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.codec = codec.New(registry,
		codec.WithAlgorithms(algorithms),
		codec.WithLogger(logging.Named(logger, logging.ComponentCodec)),
		codec.WithRecorder(recorder),
	)
	logger.Debug("codec ready", zap.Stringer("registry", registry), zap.Strings("algorithms", algorithms.Names()))
	return a, nil
}

// loadAlgorithms registers each export of each module as "<name>.<export>".
func loadAlgorithms(ctx context.Context, rt *wasm.Runtime, modules []config.AlgorithmModule, set *algorithm.Set) error {
	for _, m := range modules {
		wasmBytes, err := os.ReadFile(filepath.Clean(m.Path))
		if err != nil {
			return fmt.Errorf("read algorithm module %s: %w", m.Name, err)
		}
		if err := rt.Load(ctx, m.Name, wasmBytes); err != nil {
			return err
		}
		exports, err := rt.Exports(m.Name)
		if err != nil {
			return err
		}
		for _, fn := range exports {
			if err := set.Register(m.Name+"."+fn, algorithm.WASMFunc(rt, m.Name, fn)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.runtime != nil {
		_ = a.runtime.Close(ctx)
	}
	_ = a.logger.Sync()
}

func (a *app) describe(w io.Writer) error {
	if a.registry.Count() == 0 {
		return errors.New("no schemas loaded (use -schemas or the config schemas list)")
	}
	for _, name := range a.registry.Names() {
		s, err := a.registry.LookupByName(name)
		if err != nil {
			return err
		}
		fmt.Fprint(w, s.Describe())
	}
	return nil
}

func (a *app) encode(r io.Reader, w io.Writer) error {
	f, err := render.Lookup(a.opts.format)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var msg message.Message
	if a.opts.id >= 0 {
		var fields map[string]any
		if err := f.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("parse %s input: %w", f.Name(), err)
		}
		msg = message.Message{ID: uint32(a.opts.id), Fields: message.Fields(fields)}
	} else {
		var doc render.Document
		if err := f.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s input: %w", f.Name(), err)
		}
		if doc.Schema != "" {
			s, err := a.registry.LookupByName(doc.Schema)
			if err != nil {
				return err
			}
			doc.ID = s.ID
		}
		msg = doc.Message()
	}

	out, err := a.codec.Encode(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hex.EncodeToString(out))
	return err
}

func (a *app) decode(r io.Reader, w io.Writer) error {
	f, err := render.Lookup(a.opts.format)
	if err != nil {
		return err
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(string(text)), ""))
	if err != nil {
		return fmt.Errorf("parse hex input: %w", err)
	}

	msg, err := a.codec.Decode(data)
	if err != nil {
		return err
	}
	s, err := a.registry.Lookup(msg.ID)
	if err != nil {
		return err
	}
	out, err := f.Marshal(render.FromMessage(msg, s.Name))
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	if len(out) > 0 && out[len(out)-1] != '\n' && f.Name() != "cbor" && f.Name() != "msgpack" {
		_, err = io.WriteString(w, "\n")
	}
	return err
}

// printMetrics writes counter and histogram sample counts, one per line.
func (a *app) printMetrics(w io.Writer) {
	families, err := a.metrics.Gather()
	if err != nil {
		fmt.Fprintf(w, "gather metrics: %v\n", err)
		return
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = float64(h.GetSampleCount())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
