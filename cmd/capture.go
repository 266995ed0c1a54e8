package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/ipsniff/internal/capture"
	"firestige.xyz/ipsniff/internal/config"
	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/core/decoder"
	"firestige.xyz/ipsniff/internal/log"
	"firestige.xyz/ipsniff/internal/metrics"
	"firestige.xyz/ipsniff/internal/resolver"
	"firestige.xyz/ipsniff/internal/sink"
	"firestige.xyz/ipsniff/internal/sink/console"
	natssink "firestige.xyz/ipsniff/internal/sink/nats"
	"firestige.xyz/ipsniff/internal/sink/pcapfile"
)

const banner = `
    =============================================
    NETWORK PACKET ANALYZER - EDUCATIONAL USE ONLY
    =============================================
    This tool will capture and display network packets.
    Use only on networks you own or have permission to monitor.
    Press Ctrl+C to stop.
`

const permissionRemedy = "ERROR: raw capture requires elevated privileges (run as root or grant CAP_NET_RAW)"

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture and decode IPv4 traffic until interrupted",
	Long: `Resolve the local IPv4 address (or use --bind), open a raw capture handle,
enable promiscuous mode and print every decoded datagram until Ctrl+C.

Examples:
  ipsniff capture
  ipsniff capture --bind 192.168.1.20 --no-promisc
  ipsniff capture --format json --pcap /tmp/capture.pcap`,
	RunE: runCaptureCommand,
}

var (
	captureInterface string
	captureBind      string
	captureNoPromisc bool
	captureFormat    string
	capturePcap      string
)

func init() {
	addCaptureFlags(captureCmd)
}

func addCaptureFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&captureInterface, "interface", "i", "", "capture interface (default: the one owning the bind address)")
	f.StringVarP(&captureBind, "bind", "b", "", "IPv4 address to bind (default: resolved via the probe address)")
	f.BoolVar(&captureNoPromisc, "no-promisc", false, "do not enable promiscuous mode")
	f.StringVarP(&captureFormat, "format", "o", "", "output format: text or json")
	f.StringVar(&capturePcap, "pcap", "", "also write raw frames to this pcap file")
}

func runCaptureCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := applyCaptureFlags(cmd, cfg); err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCapture(ctx, cfg, defaultCaptureDeps(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// applyCaptureFlags overlays explicitly set flags on cfg.
func applyCaptureFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("interface") {
		cfg.Capture.Interface = captureInterface
	}
	if f.Changed("bind") {
		cfg.Capture.BindAddress = captureBind
	}
	if f.Changed("no-promisc") && captureNoPromisc {
		cfg.Capture.Promiscuous = false
	}
	if f.Changed("format") {
		cfg.Output.Format = captureFormat
	}
	if f.Changed("pcap") {
		cfg.Output.Pcap.Enabled = capturePcap != ""
		cfg.Output.Pcap.Path = capturePcap
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// captureHandle is the part of *capture.Handle the command drives.
type captureHandle interface {
	capture.Source
	Activate() error
	EnablePromiscuous() error
	State() core.CaptureState
}

type captureDeps struct {
	resolve func(ctx context.Context, probe string) (netip.Addr, error)
	open    func(bind netip.Addr, opts capture.Options) (captureHandle, error)
}

func defaultCaptureDeps() captureDeps {
	return captureDeps{
		resolve: resolver.LocalAddress,
		open: func(bind netip.Addr, opts capture.Options) (captureHandle, error) {
			h, err := capture.Open(bind, opts)
			if err != nil {
				return nil, err
			}
			return h, nil
		},
	}
}

// runCapture runs the whole pipeline. Status text goes to stdout in text mode
// and to stderr in JSON mode so stdout stays machine readable.
func runCapture(ctx context.Context, cfg *config.Config, deps captureDeps, stdout, stderr io.Writer) error {
	info := stdout
	if cfg.Output.Format == console.FormatJSON {
		info = stderr
	}
	logger := log.GetLogger()

	fmt.Fprint(info, banner)
	defer fmt.Fprintln(info, "Packet capture stopped.")

	bind, ok := cfg.Capture.BindAddr()
	if !ok {
		addr, err := deps.resolve(ctx, cfg.Resolver.ProbeAddress)
		if err != nil {
			fmt.Fprintln(stderr, "\nERROR: Could not determine local IP address!")
			fmt.Fprintln(stderr, "Please connect to a network and try again.")
			return err
		}
		bind = addr
	}
	fmt.Fprintf(info, "\nDetected local IP: %s\n", bind)

	h, err := deps.open(bind, capture.Options{Interface: cfg.Capture.Interface, SnapLen: cfg.Capture.SnapLen})
	if err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			fmt.Fprintln(stderr, "\n"+permissionRemedy)
		} else {
			fmt.Fprintf(stderr, "\nERROR: %v\n", err)
		}
		return err
	}

	if err := activate(h, cfg.Capture.Promiscuous, stderr); err != nil {
		h.Close()
		return err
	}

	out, snk, err := buildSinks(cfg, stdout)
	if err != nil {
		h.Close()
		return err
	}
	defer func() {
		if err := snk.Close(); err != nil {
			logger.WithError(err).Warn("close sinks failed")
		}
	}()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, func() (string, bool) {
			s := h.State()
			return s.String(), s == core.StateActive
		})
		if err := srv.Start(ctx); err != nil {
			h.Close()
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.WithError(err).Warn("stop metrics server failed")
			}
		}()
	}

	fmt.Fprint(info, "\nPacket Sniffer Started (Ctrl+C to stop)\n\n")
	out.Header()

	loop := capture.NewLoop(h, decoder.New(), snk)
	err = loop.Run(ctx)

	stats := loop.Stats()
	logger.WithFields(map[string]interface{}{
		"frames":   stats.Frames,
		"packets":  stats.Packets,
		"failures": stats.Failures,
		"retries":  stats.Retries,
	}).Info("capture finished")

	if err != nil {
		fmt.Fprintf(stderr, "\nNetwork error: %v\n", err)
		return err
	}
	fmt.Fprintln(info, "\nStopping packet capture...")
	return nil
}

func activate(h captureHandle, promiscuous bool, stderr io.Writer) error {
	if !promiscuous {
		return h.Activate()
	}
	err := h.EnablePromiscuous()
	var ce *capture.CapabilityError
	if errors.As(err, &ce) {
		fmt.Fprintln(stderr, "\nWARNING: Promiscuous mode not available on this system")
		fmt.Fprintln(stderr, "You'll only see packets destined for your machine")
		return nil
	}
	return err
}

// buildSinks creates the console sink plus the optional pcap and NATS sinks.
func buildSinks(cfg *config.Config, stdout io.Writer) (*console.Sink, sink.Multi, error) {
	out := console.NewSink(stdout, cfg.Output.Format)
	sinks := sink.Multi{out}

	if cfg.Output.Pcap.Enabled {
		p, err := pcapfile.Create(cfg.Output.Pcap.Path, cfg.Capture.SnapLen)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, p)
	}

	if cfg.Output.NATS.Enabled {
		n, err := natssink.Connect(cfg.Output.NATS.URL, cfg.Output.NATS.Subject)
		if err != nil {
			sinks.Close()
			return nil, nil, err
		}
		sinks = append(sinks, n)
	}
	return out, sinks, nil
}
