package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/banshee-data/dataq/internal/config"
)

// envPrefix names the environment overrides: --db is DATAQ_DB,
// --grpc-listen is DATAQ_GRPC_LISTEN.
const envPrefix = "DATAQ_"

type options struct {
	listen     string
	grpcListen string
	dbPath     string
	configPath string
	envFile    string
	id         string

	serialPort string
	baudRate   int
	udpAddr    string
	udpRcvBuf  int
	pcapFile   string
	pcapPort   int
	realtime   bool

	debug       bool
	trace       bool
	showVersion bool
}

func newFlagSet(o *options) *flag.FlagSet {
	flags := flag.NewFlagSet("dataq", flag.ContinueOnError)
	flags.StringVar(&o.listen, "listen", ":8080", "HTTP listen address")
	flags.StringVar(&o.grpcListen, "grpc-listen", ":9090", "gRPC health service listen address (empty disables)")
	flags.StringVar(&o.dbPath, "db", "dataq.db", "SQLite database path")
	flags.StringVar(&o.configPath, "config", config.DefaultConfigPath, "configuration defaults file")
	flags.StringVar(&o.envFile, "env", ".env", "environment overlay file")
	flags.StringVar(&o.id, "id", "", "device id used in event topics (default: hostname)")

	flags.StringVar(&o.serialPort, "serial", "", "serial device carrying the detection feed")
	flags.IntVar(&o.baudRate, "baud", 115200, "serial baud rate")
	flags.StringVar(&o.udpAddr, "udp", "", "UDP listen address for the detection feed")
	flags.IntVar(&o.udpRcvBuf, "udp-rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	flags.StringVar(&o.pcapFile, "pcap", "", "replay the detection feed from a capture file")
	flags.IntVar(&o.pcapPort, "pcap-port", 0, "UDP destination port to replay (0 = all)")
	flags.BoolVar(&o.realtime, "realtime", false, "pace PCAP replay by capture timestamps")

	flags.BoolVar(&o.debug, "debug", false, "log track and stitch decisions")
	flags.BoolVar(&o.trace, "trace", false, "log per-frame detail")
	flags.BoolVar(&o.showVersion, "version", false, "print version and exit")
	return flags
}

// parseFlags parses args, then fills every flag not given on the command
// line from the environment. The env file named by --env (or DATAQ_ENV) is
// loaded first; variables already set in the process win over the file.
func parseFlags(args []string, getenv func(string) string) (*options, error) {
	o := &options{}
	flags := newFlagSet(o)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	envFile := o.envFile
	if !set["env"] {
		if v := getenv(envName("env")); v != "" {
			envFile = v
		}
	}
	fileEnv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	var setErr error
	flags.VisitAll(func(f *flag.Flag) {
		if set[f.Name] || setErr != nil {
			return
		}
		name := envName(f.Name)
		v := getenv(name)
		if v == "" {
			v = fileEnv[name]
		}
		if v == "" {
			return
		}
		if err := flags.Set(f.Name, v); err != nil {
			setErr = fmt.Errorf("invalid %s: %w", name, err)
		}
	})
	if setErr != nil {
		return nil, setErr
	}

	if o.id == "" {
		o.id, _ = os.Hostname()
	}
	return o, nil
}

func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
