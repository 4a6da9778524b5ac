package conf

import "time"

type Bootstrap struct {
	Logging Logging `yaml:"logging" json:"logging"`
	Server  Server  `yaml:"server" json:"server"`
	Storage Storage `yaml:"storage" json:"storage"`
	Store   Store   `yaml:"store" json:"store"`
}

type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Caller bool   `yaml:"caller" json:"caller"`
}

type Server struct {
	HTTP HTTP `yaml:"http" json:"http"`
}

type HTTP struct {
	Addr    string `yaml:"addr" json:"addr"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration parses Timeout, defaulting to one second.
func (h HTTP) TimeoutDuration() time.Duration {
	return parseDuration(h.Timeout, time.Second)
}

type Storage struct {
	// Driver is one of nutsdb, mysql, postgres or memory.
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
	Bucket string `yaml:"bucket" json:"bucket"`
	Key    string `yaml:"key" json:"key"`
	// Codec is one of json, yaml or cbor.
	Codec string `yaml:"codec" json:"codec"`
}

type Store struct {
	DeleteDelay string `yaml:"delete_delay" json:"delete_delay"`
	Locale      string `yaml:"locale" json:"locale"`
}

// DeleteDelayDuration parses DeleteDelay, defaulting to 500ms.
func (s Store) DeleteDelayDuration() time.Duration {
	return parseDuration(s.DeleteDelay, 500*time.Millisecond)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
