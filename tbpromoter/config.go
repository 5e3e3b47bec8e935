package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/iotaledger/iota.go/guards/validators"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/unioproject/tbpromoter/lib/config"
)

const (
	Version               = "1.0"
	PREFIX_MODULE         = "tbpromoter"
	CONFIG_FILE           = "tbpromoter.yml"
	defaultLogFormat      = "%{time:2006-01-02 15:04:05.000} %{level:.4s} [%{module:.7s}] %{message}"
	defaultLogFormatDebug = "%{time:2006-01-02 15:04:05.000} %{level:.4s} [%{module:.7s}|%{shortfunc:.12s}] %{message}"
	defaultIotaNode       = "http://localhost:14265"
	defaultTimeoutAPI     = 30
	defaultTagPromote     = "TANGLE9BEAT"
	defaultAddressPromote = "TANGLEBEAT9PROMOTE999999999999999999999999999999999999999999999999999999999999999"
	defaultSingleDeadline = 180
	defaultPublisherPort  = 3100
	defaultPrometheusPort = 8081
	defaultAuditDbFile    = "tbpromoter.db"
)

var (
	log            *logging.Logger
	summaryLog     *logging.Logger
	logLevel       logging.Level
	logFormatter   logging.Formatter
	logInitialized bool
)

type ConfigStructYAML struct {
	siteDataDir string
	Logging     loggingConfigYAML `yaml:"logging"`
	Iota        iotaYAML          `yaml:"iota"`
	Pursuit     pursuitYAML       `yaml:"pursuit"`
	Discovery   discoveryYAML     `yaml:"discovery"`
	Publisher   publisherYAML     `yaml:"publisher"`
	Prometheus  prometheusYAML    `yaml:"prometheus"`
	Audit       auditYAML         `yaml:"audit"`
}

type loggingConfigYAML struct {
	Debug          bool   `yaml:"debug"`
	WorkingSubdir  string `yaml:"workingSubdir"`
	LogConsoleOnly bool   `yaml:"logConsoleOnly"`
	LogFormat      string `yaml:"logFormat"`
	LogFormatDebug string `yaml:"logFormatDebug"`
}

type iotaYAML struct {
	IOTANode        []string `yaml:"iotaNode"`
	TimeoutAPI      uint64   `yaml:"apiTimeout"`
	CallsPerSecond  int      `yaml:"callsPerSecond"`
	MWM             uint64   `yaml:"mwm"`
	TxTagPromote    string   `yaml:"txTagPromote"`
	AddressPromote  string   `yaml:"addressPromote"`
	DebugMultiCalls bool     `yaml:"debugMultiCalls"`
}

type pursuitYAML struct {
	MaxPromotions     int `yaml:"maxPromotions"`
	SleepAfterErrSec  int `yaml:"sleepAfterErrorSec"`
	SingleDeadlineMin int `yaml:"singleDeadlineMin"`
}

type discoveryYAML struct {
	ValueThreshold       int64    `yaml:"valueThreshold"`
	MaxAgeMin            int      `yaml:"maxAgeMin"`
	DeadlineMin          int      `yaml:"deadlineMin"`
	SampleSize           int      `yaml:"sampleSize"`
	CycleSec             int      `yaml:"cycleSec"`
	MaxPursuits          int      `yaml:"maxPursuits"`
	ConfirmedCacheSize   int      `yaml:"confirmedCacheSize"`
	ConfirmedCacheTTLMin int      `yaml:"confirmedCacheTTLMin"`
	InputsZMQ            []string `yaml:"inputsZMQ"`
}

type publisherYAML struct {
	Enabled    bool `yaml:"enabled"`
	OutputPort int  `yaml:"outputPort"`
}

type prometheusYAML struct {
	Enabled          bool `yaml:"enabled"`
	ScrapeTargetPort int  `yaml:"scrapeTargetPort"`
}

type auditYAML struct {
	Enabled bool   `yaml:"enabled"`
	DbFile  string `yaml:"dbFile"`
}

// main config structure
var Config = ConfigStructYAML{}

func flushMsgBeforeLog(msgBeforeLog []string) {
	for _, msg := range msgBeforeLog {
		if logInitialized {
			log.Info(msg)
		} else {
			fmt.Println(msg)
		}
	}
}

// readMasterConfig reads config, sets defaults and creates loggers.
// Log files are named after logName. Summary log is created only if withSummary
func readMasterConfig(configFilename string, logName string, withSummary bool) error {
	msgBeforeLog := make([]string, 0, 10)
	msgBeforeLog = append(msgBeforeLog, "---- Starting promoter tbpromoter ver. "+Version)
	msgBeforeLog, fname, err := config.ReadYAML(configFilename, msgBeforeLog, &Config)
	if err != nil {
		flushMsgBeforeLog(msgBeforeLog)
		return err
	}
	Config.siteDataDir = path.Dir(fname)
	if err = Config.setDefaults(); err != nil {
		flushMsgBeforeLog(msgBeforeLog)
		return err
	}
	msgBeforeLog, err = setupLogging(logName, withSummary, time.Now(), msgBeforeLog)
	flushMsgBeforeLog(msgBeforeLog)
	return err
}

func (cfg *ConfigStructYAML) setDefaults() error {
	if cfg.Logging.LogFormat == "" {
		cfg.Logging.LogFormat = defaultLogFormat
	}
	if cfg.Logging.LogFormatDebug == "" {
		cfg.Logging.LogFormatDebug = defaultLogFormatDebug
	}
	if len(cfg.Iota.IOTANode) == 0 {
		cfg.Iota.IOTANode = []string{defaultIotaNode}
	}
	if cfg.Iota.TimeoutAPI == 0 {
		cfg.Iota.TimeoutAPI = defaultTimeoutAPI
	}
	if cfg.Iota.TxTagPromote == "" {
		cfg.Iota.TxTagPromote = defaultTagPromote
	}
	if cfg.Iota.AddressPromote == "" {
		cfg.Iota.AddressPromote = defaultAddressPromote
	}
	cfg.Iota.TxTagPromote = padTag(cfg.Iota.TxTagPromote)
	if err := validators.Validate(
		validators.ValidateTags(cfg.Iota.TxTagPromote),
		validators.ValidateHashes(cfg.Iota.AddressPromote),
	); err != nil {
		return errors.Wrap(err, "wrong promotion tag or address")
	}
	if cfg.Pursuit.SingleDeadlineMin <= 0 {
		cfg.Pursuit.SingleDeadlineMin = defaultSingleDeadline
	}
	if cfg.Publisher.OutputPort == 0 {
		cfg.Publisher.OutputPort = defaultPublisherPort
	}
	if cfg.Prometheus.ScrapeTargetPort == 0 {
		cfg.Prometheus.ScrapeTargetPort = defaultPrometheusPort
	}
	if cfg.Audit.DbFile == "" {
		cfg.Audit.DbFile = defaultAuditDbFile
	}
	// zero values of pursuit and discovery parameters are replaced with defaults by the packages
	return nil
}

// padTag pads the tag with '9' to 27 trytes
func padTag(tag Trytes) Trytes {
	const tagLen = 27
	for len(tag) < tagLen {
		tag += "9"
	}
	return tag
}

func minutes(m int) time.Duration {
	return time.Duration(m) * time.Minute
}

// logDir is one directory per day, like logs/17-10-2018
func logDir(now time.Time) string {
	return path.Join(Config.siteDataDir, Config.Logging.WorkingSubdir, "logs", now.Format("02-01-2006"))
}

func openLogFile(dir, name string, now time.Time) (*os.File, string, error) {
	fname := path.Join(dir, now.Format("150405")+"_"+name+".log")
	fout, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, fname, errors.Wrapf(err, "opening log file %v", fname)
	}
	return fout, fname, nil
}

// setupLogging creates 'log' and, if withSummary, 'summaryLog' which writes
// one line per finished pursuit to its own file.
// Files of one run are in the directory of the day and start with the time of the start
func setupLogging(name string, withSummary bool, now time.Time, msgBeforeLog []string) ([]string, error) {
	if Config.Logging.Debug {
		logLevel = logging.DEBUG
		logFormatter = logging.MustStringFormatter(Config.Logging.LogFormatDebug)
	} else {
		logLevel = logging.INFO
		logFormatter = logging.MustStringFormatter(Config.Logging.LogFormat)
	}
	summaryLog = nil
	var logWriter io.Writer = os.Stderr
	dir := logDir(now)

	if !Config.Logging.LogConsoleOnly || withSummary {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return msgBeforeLog, errors.Wrapf(err, "creating log directory %v", dir)
		}
	}
	if Config.Logging.LogConsoleOnly {
		msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Will be logging at %v level to stderr only", logLevel))
	} else {
		fout, fname, err := openLogFile(dir, name, now)
		if err != nil {
			return msgBeforeLog, err
		}
		logWriter = io.MultiWriter(os.Stderr, fout)
		msgBeforeLog = append(msgBeforeLog, fmt.Sprintf("Will be logging at %v level to stderr and %v", logLevel, fname))
	}
	log = logging.MustGetLogger("main")
	log.SetBackend(leveledBackend(logWriter, "main"))
	logInitialized = true

	if !withSummary {
		return msgBeforeLog, nil
	}
	fout, fname, err := openLogFile(dir, name+"_summary", now)
	if err != nil {
		return msgBeforeLog, err
	}
	summaryLog = logging.MustGetLogger("summary")
	summaryLog.SetBackend(leveledBackend(fout, "summary"))
	msgBeforeLog = append(msgBeforeLog, "Summary of pursuits goes to "+fname)
	return msgBeforeLog, nil
}

func leveledBackend(w io.Writer, module string) logging.LeveledBackend {
	ret := logging.AddModuleLevel(logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), logFormatter))
	ret.SetLevel(logLevel, module)
	return ret
}
