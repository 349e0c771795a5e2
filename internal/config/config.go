// Package config loads the static chat client configuration and derives the
// WebSocket URI from it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/omochice/wschat/internal/logger"
)

// ErrInvalid reports a configuration record that cannot produce a usable URI.
var ErrInvalid = errors.New("invalid configuration")

// Scheme is the WebSocket URI scheme.
type Scheme string

const (
	SchemeWS  Scheme = "ws"
	SchemeWSS Scheme = "wss"
)

// Connection is the immutable description of the remote endpoint.
type Connection struct {
	Scheme    Scheme
	Host      string
	Port      int
	Resource  string
	Protocols []string
}

// URI returns scheme://host:port/resource. IPv6 hosts are bracketed.
func (c Connection) URI() string {
	resource := c.Resource
	if !strings.HasPrefix(resource, "/") {
		resource = "/" + resource
	}
	return string(c.Scheme) + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + resource
}

// Secure reports whether the connection uses TLS.
func (c Connection) Secure() bool {
	return c.Scheme == SchemeWSS
}

// Config is everything the client reads at startup.
type Config struct {
	Connection Connection
	Transport  string
	Log        logger.LogConfig
}

// record mirrors the JSON document on disk.
type record struct {
	Host      string            `json:"host"`
	Port      Port              `json:"port"`
	Resource  string            `json:"resource"`
	Secure    BoolLike          `json:"secure"`
	Protocols Protocols         `json:"protocols"`
	Transport string            `json:"transport"`
	Log       *logger.LogConfig `json:"log"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	conn := Connection{
		Scheme:    SchemeWS,
		Host:      strings.Trim(strings.TrimSpace(r.Host), "[]"),
		Port:      int(r.Port),
		Resource:  r.Resource,
		Protocols: []string(r.Protocols),
	}
	if r.Secure {
		conn.Scheme = SchemeWSS
	}
	if conn.Port == 0 {
		conn.Port = defaultPort(conn.Scheme)
	}
	if err := conn.validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Connection: conn,
		Transport:  r.Transport,
		Log:        logger.DefaultLogConfig(),
	}
	if r.Log != nil {
		cfg.Log = *r.Log
	}
	return cfg, nil
}

func (c Connection) validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalid)
	}
	if strings.ContainsAny(c.Host, "/ ") {
		return fmt.Errorf("%w: host %q", ErrInvalid, c.Host)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	for _, p := range c.Protocols {
		if p == "" || strings.ContainsAny(p, " ,") {
			return fmt.Errorf("%w: protocol %q", ErrInvalid, p)
		}
	}
	return nil
}

func defaultPort(s Scheme) int {
	if s == SchemeWSS {
		return 443
	}
	return 80
}

// BoolLike accepts true, "true", 1, "1" and "yes" as true; anything else,
// including null, is false.
type BoolLike bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *BoolLike) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "1", "yes":
		*b = true
	default:
		*b = false
	}
	return nil
}

// Port accepts a JSON number or a numeric string.
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: port %s", ErrInvalid, string(data))
	}
	*p = Port(n)
	return nil
}

// Protocols accepts either a list of subprotocol names or a single name.
type Protocols []string

// UnmarshalJSON implements json.Unmarshaler.
func (p *Protocols) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("%w: protocols must be a string or a list of strings", ErrInvalid)
	}
	if single == "" {
		*p = nil
	} else {
		*p = []string{single}
	}
	return nil
}
