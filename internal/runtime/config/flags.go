package config

import (
	"github.com/spf13/pflag"
)

// Flags binds command-line overrides. Only flags set on the command line are
// applied, so they win over the file and the environment without resetting
// anything else.
type Flags struct {
	fs     *pflag.FlagSet
	path   string
	values Config
}

// NewFlags defines the relay flags on fs.
func NewFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()
	v := &f.values

	fs.StringVarP(&f.path, "config", "c", "", "YAML config file")
	fs.StringVar(&v.PubSubSystem, "pubsub", d.PubSubSystem, "bus transport: channel, nats, kafka or rabbitmq")
	fs.StringVar(&v.NATSURL, "nats-url", d.NATSURL, "NATS server URL")
	fs.StringSliceVar(&v.KafkaBrokers, "kafka-brokers", d.KafkaBrokers, "Kafka bootstrap brokers")
	fs.StringVar(&v.RabbitMQURL, "rabbitmq-url", d.RabbitMQURL, "RabbitMQ URL")
	fs.StringVar(&v.ProgressStore, "progress-store", d.ProgressStore, "job progress store: memory, nats or etcd")
	fs.StringSliceVar(&v.EtcdEndpoints, "etcd-endpoints", d.EtcdEndpoints, "etcd endpoints")
	fs.StringVar(&v.BackendURL, "backend-url", d.BackendURL, "bot API base URL")
	fs.StringVar(&v.Hostname, "hostname", d.Hostname, "node hostname; its numeric suffix is the node id")
	fs.StringVar(&v.HTTPHost, "host", d.HTTPHost, "HTTP listen host")
	fs.IntVar(&v.HTTPPort, "port", d.HTTPPort, "HTTP listen port")
	fs.BoolVar(&v.MetricsEnabled, "metrics", d.MetricsEnabled, "serve Prometheus metrics")
	fs.StringVar(&v.LogLevel, "log-level", d.LogLevel, "log level")
	fs.DurationVar(&v.ProcessTimeout, "process-timeout", d.ProcessTimeout, "per-request handler timeout, 0 disables")
	fs.DurationVar(&v.ChunkDelay, "chunk-delay", d.ChunkDelay, "pause between verifyall chunks")
	return f
}

// Path is the --config value.
func (f *Flags) Path() string { return f.path }

// Apply copies every flag the user set onto c.
func (f *Flags) Apply(c *Config) {
	set := map[string]func(){
		"pubsub":          func() { c.PubSubSystem = f.values.PubSubSystem },
		"nats-url":        func() { c.NATSURL = f.values.NATSURL },
		"kafka-brokers":   func() { c.KafkaBrokers = f.values.KafkaBrokers },
		"rabbitmq-url":    func() { c.RabbitMQURL = f.values.RabbitMQURL },
		"progress-store":  func() { c.ProgressStore = f.values.ProgressStore },
		"etcd-endpoints":  func() { c.EtcdEndpoints = f.values.EtcdEndpoints },
		"backend-url":     func() { c.BackendURL = f.values.BackendURL },
		"hostname":        func() { c.Hostname = f.values.Hostname },
		"host":            func() { c.HTTPHost = f.values.HTTPHost },
		"port":            func() { c.HTTPPort = f.values.HTTPPort },
		"metrics":         func() { c.MetricsEnabled = f.values.MetricsEnabled },
		"log-level":       func() { c.LogLevel = f.values.LogLevel },
		"process-timeout": func() { c.ProcessTimeout = f.values.ProcessTimeout },
		"chunk-delay":     func() { c.ChunkDelay = f.values.ChunkDelay },
	}
	f.fs.Visit(func(fl *pflag.Flag) {
		if apply, ok := set[fl.Name]; ok {
			apply()
		}
	})
}

// LoadWithFlags is Load followed by the command-line overrides.
func LoadWithFlags(f *Flags) (*Config, error) {
	cfg, err := Load(f.Path())
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	return cfg, nil
}
