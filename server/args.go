package server

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/firmware"
	"github.com/nodelog/slogd/shm"
	"github.com/nodelog/slogd/system"
)

// Args parses the daemon command line. Most options can also be set
// with a SLOGD_* environment variable; a flag given on the command line
// wins.
func Args(args []string, flags *flag.FlagSet) (Options, error) {
	defaultNatsServer := "nats://127.0.0.1:4222"

	// =============================================
	// Command line options
	// =============================================
	if flags == nil {
		flags = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	}

	flagDevID := flags.Int("devId", int(data.AllDevices), "device served by this instance, -1 for the master instance")
	flagConf := flags.String("conf", "/var/log/npu/conf/slog/slog.conf", "level config file")
	flagConfDirs := flags.String("confDirs", "", "comma separated directories the config file may live in (default: its own directory)")
	flagWorkspace := flags.String("workspace", "/usr/slog", "directory holding the change sentinel file")
	flagShmDir := flags.String("shmDir", shm.DefaultDir, "shared memory directory")
	flagShmKey := flags.String("shmKey", shm.DefaultKey, "shared memory segment name")
	flagFirmware := flags.String("firmware", firmware.SinkNone, "firmware level sink: proc, hal or none")
	flagFirmwareRoot := flags.String("firmwareRoot", firmware.DefaultProcRoot, "firmware control directory for the proc sink")
	flagModules := flags.String("modules", "", "YAML module catalog (default: compiled in catalog)")
	flagLevel := flags.String("level", "", "initial global level (name or digit), overrides the config file")
	flagNatsServer := flags.String("natsServer", defaultNatsServer, "NATS Server")
	flagNatsPort := flags.Int("natsPort", 4222, "port of the embedded NATS server")
	flagNatsDisableServer := flags.Bool("natsDisableServer", false, "disable NATS server (if you want to run NATS separately)")
	flagAuthToken := flags.String("token", "", "auth token")
	flagMetricsAddr := flags.String("metricsAddr", "", "serve prometheus metrics on this address, for example :9101")
	flagID := flags.String("id", "", "instance ID (default: random UUID)")
	flagSyslog := flags.Bool("syslog", false, "log to syslog instead of stdout")
	flagDebug := flags.Bool("debug", false, "log every level request")
	flagDebugLifecycle := flags.Bool("debugLifecycle", false, "debug program lifecycle")

	if err := flags.Parse(args); err != nil {
		return Options{}, err
	}

	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// env overrides only apply to options not given on the command line
	env := func(flagName, envName string, v *string) {
		if set[flagName] {
			return
		}
		if e := os.Getenv(envName); e != "" {
			*v = e
		}
	}

	env("conf", "SLOGD_CONF", flagConf)
	env("confDirs", "SLOGD_CONF_DIRS", flagConfDirs)
	env("workspace", "SLOGD_WORKSPACE", flagWorkspace)
	env("shmDir", "SLOGD_SHM_DIR", flagShmDir)
	env("firmware", "SLOGD_FIRMWARE", flagFirmware)
	env("natsServer", "SLOGD_NATS_SERVER", flagNatsServer)
	env("metricsAddr", "SLOGD_METRICS_ADDR", flagMetricsAddr)

	devID := *flagDevID
	if e := os.Getenv("SLOGD_DEV_ID"); e != "" && !set["devId"] {
		n, err := strconv.Atoi(e)
		if err != nil {
			return Options{}, fmt.Errorf("Error parsing SLOGD_DEV_ID: %v", err)
		}
		devID = n
	}

	if devID != int(data.AllDevices) && (devID < 0 || devID >= data.MaxDevices) {
		return Options{}, fmt.Errorf("devId %v out of range", devID)
	}

	natsPort := *flagNatsPort
	if e := os.Getenv("SLOGD_NATS_PORT"); e != "" && !set["natsPort"] {
		n, err := strconv.Atoi(e)
		if err != nil {
			return Options{}, fmt.Errorf("Error parsing SLOGD_NATS_PORT: %v", err)
		}
		natsPort = n
	}

	authToken := os.Getenv("SLOGD_AUTH_TOKEN")
	if *flagAuthToken != "" {
		authToken = *flagAuthToken
	}

	initLevel := data.SeverityInvalid
	if *flagLevel != "" {
		var ok bool
		initLevel, ok = parseLevelArg(*flagLevel)
		if !ok {
			return Options{}, fmt.Errorf("invalid level: %v", *flagLevel)
		}
	}

	var confDirs []string
	for _, d := range strings.Split(*flagConfDirs, ",") {
		if d = strings.TrimSpace(d); d != "" {
			confDirs = append(confDirs, d)
		}
	}

	id := *flagID
	if id == "" {
		id = uuid.New().String()
	}

	if *flagSyslog {
		if err := system.EnableSyslog("slogd"); err != nil {
			fmt.Fprintln(os.Stderr, "Error enabling syslog:", err)
		}
	}

	o := Options{
		DevID:             int32(devID),
		ConfFile:          *flagConf,
		ConfDirs:          confDirs,
		Workspace:         *flagWorkspace,
		ShmDir:            *flagShmDir,
		ShmKey:            *flagShmKey,
		Firmware:          *flagFirmware,
		FirmwareRoot:      *flagFirmwareRoot,
		ModulesFile:       *flagModules,
		InitLevel:         initLevel,
		NatsServer:        *flagNatsServer,
		NatsPort:          natsPort,
		NatsHTTPPort:      0,
		NatsDisableServer: *flagNatsDisableServer,
		AuthToken:         authToken,
		MetricsAddr:       *flagMetricsAddr,
		Debug:             *flagDebug,
		DebugLifecycle:    *flagDebugLifecycle,
		ID:                id,
	}

	return o, nil
}

// parseLevelArg accepts a level name or its digit
func parseLevelArg(s string) (data.Severity, bool) {
	if sev, ok := data.ParseSeverity(s); ok {
		return sev, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return data.SeverityInvalid, false
	}
	sev := data.Severity(n)
	return sev, sev.Valid()
}
