// Package registry loads and saves the target-server registry file: the
// JSON document describing the fleet of hosts the engine may replicate onto.
package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// AuthMethod is the tagged variant of how a target server authenticates an
// incoming SSH session. Exactly one of the three shapes below applies,
// selected by Method.
type AuthMethod struct {
	Method string `json:"auth_method"` // "key" | "password" | "key-with-passphrase"

	// KeyPath is set for "key" and "key-with-passphrase".
	KeyPath string `json:"ssh_key_path,omitempty"`

	// PasswordObfuscated holds the obfuscated password bytes (base64 on the
	// wire) for "password" and the key passphrase for "key-with-passphrase".
	// Obfuscation is reversible and weak by design; see Obfuscate/Deobfuscate.
	PasswordObfuscated []byte `json:"-"`
}

const (
	MethodKey               = "key"
	MethodPassword          = "password"
	MethodKeyWithPassphrase = "key-with-passphrase"
)

// Validate checks that the auth method is one of the known variants and
// carries the fields it requires.
func (a AuthMethod) Validate() error {
	switch a.Method {
	case MethodKey:
		if a.KeyPath == "" {
			return fmt.Errorf("auth_method %q requires ssh_key_path", a.Method)
		}
	case MethodPassword:
		if len(a.PasswordObfuscated) == 0 {
			return fmt.Errorf("auth_method %q requires password_base64", a.Method)
		}
	case MethodKeyWithPassphrase:
		if a.KeyPath == "" || len(a.PasswordObfuscated) == 0 {
			return fmt.Errorf("auth_method %q requires ssh_key_path and password_base64", a.Method)
		}
	default:
		return fmt.Errorf("unknown auth_method %q", a.Method)
	}
	return nil
}

// wireAuth mirrors the JSON shape of one target server entry's auth fields,
// used only during marshal/unmarshal of AuthMethod's password side channel.
type wireAuth struct {
	Method         string `json:"auth_method"`
	KeyPath        string `json:"ssh_key_path,omitempty"`
	PasswordBase64 string `json:"password_base64,omitempty"`
}

// ServerEntry is one entry in the "target_servers" array of the registry
// file, matching the schema fixed by the specification exactly.
type ServerEntry struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	IP                string   `json:"ip"`
	Port              int      `json:"port,omitempty"`
	Username          string   `json:"username"`
	Auth              wireAuth `json:"-"`
	RemotePath        string   `json:"remote_path"`
	Enabled           *bool    `json:"enabled,omitempty"`
	Priority          *int     `json:"priority,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	MaxRetries        *int     `json:"max_retries,omitempty"`
	RetryDelaySeconds *int     `json:"retry_delay_seconds,omitempty"`
}

// MarshalJSON flattens the embedded auth fields into the entry's JSON object,
// matching the flat schema of §6.1 rather than a nested "auth" object.
func (s ServerEntry) MarshalJSON() ([]byte, error) {
	type alias ServerEntry
	return json.Marshal(struct {
		alias
		AuthMethod     string `json:"auth_method"`
		SSHKeyPath     string `json:"ssh_key_path,omitempty"`
		PasswordBase64 string `json:"password_base64,omitempty"`
	}{
		alias:          alias(s),
		AuthMethod:     s.Auth.Method,
		SSHKeyPath:     s.Auth.KeyPath,
		PasswordBase64: s.Auth.PasswordBase64,
	})
}

// UnmarshalJSON reads the flat auth fields back into the embedded Auth struct.
func (s *ServerEntry) UnmarshalJSON(data []byte) error {
	type alias ServerEntry
	aux := struct {
		*alias
		AuthMethod     string `json:"auth_method"`
		SSHKeyPath     string `json:"ssh_key_path,omitempty"`
		PasswordBase64 string `json:"password_base64,omitempty"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Auth = wireAuth{Method: aux.AuthMethod, KeyPath: aux.SSHKeyPath, PasswordBase64: aux.PasswordBase64}
	return nil
}

// Password decodes the base64 password field into obfuscated bytes, as
// stored on the wire. Returns nil, nil if no password is set.
func (s ServerEntry) Password() ([]byte, error) {
	if s.Auth.PasswordBase64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s.Auth.PasswordBase64)
}

// SetPassword base64-encodes already-obfuscated password bytes into the
// entry's wire representation.
func (s *ServerEntry) SetPassword(obfuscated []byte) {
	s.Auth.PasswordBase64 = base64.StdEncoding.EncodeToString(obfuscated)
}

// DefaultSettings supplies fallback values for optional per-server fields.
type DefaultSettings struct {
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	SSHKeyPath string `json:"ssh_key_path,omitempty"`
	RemotePath string `json:"remote_path,omitempty"`
}

// DeploymentStrategy carries the concurrency and timing knobs for the
// Self-Replicator and Remote Deployer.
type DeploymentStrategy struct {
	ParallelDeployments      int `json:"parallel_deployments,omitempty"`
	DeploymentTimeoutSeconds int `json:"deployment_timeout_seconds,omitempty"`
	HealthCheckIntervalSecs  int `json:"health_check_interval_seconds,omitempty"`
}

// File is the top-level shape of the registry document at CONFIG_PATH.
type File struct {
	TargetServers       []ServerEntry       `json:"target_servers"`
	DefaultSettings     DefaultSettings     `json:"default_settings"`
	DeploymentStrategy  DeploymentStrategy  `json:"deployment_strategy"`
}

// ApplyDefaults fills in unset optional fields on every entry from
// DefaultSettings and the documented literal defaults (§6.1).
func (f *File) ApplyDefaults() {
	for i := range f.TargetServers {
		e := &f.TargetServers[i]
		if e.Port == 0 {
			if f.DefaultSettings.Port != 0 {
				e.Port = f.DefaultSettings.Port
			} else {
				e.Port = 22
			}
		}
		if e.Username == "" {
			e.Username = f.DefaultSettings.Username
		}
		if e.Auth.KeyPath == "" {
			e.Auth.KeyPath = f.DefaultSettings.SSHKeyPath
		}
		if e.RemotePath == "" {
			e.RemotePath = f.DefaultSettings.RemotePath
		}
		if e.Enabled == nil {
			t := true
			e.Enabled = &t
		}
		if e.Priority == nil {
			p := 100
			e.Priority = &p
		}
		if e.MaxRetries == nil {
			m := 3
			e.MaxRetries = &m
		}
		if e.RetryDelaySeconds == nil {
			r := 60
			e.RetryDelaySeconds = &r
		}
	}
	if f.DeploymentStrategy.ParallelDeployments == 0 {
		f.DeploymentStrategy.ParallelDeployments = 2
	}
	if f.DeploymentStrategy.DeploymentTimeoutSeconds == 0 {
		f.DeploymentStrategy.DeploymentTimeoutSeconds = 300
	}
	if f.DeploymentStrategy.HealthCheckIntervalSecs == 0 {
		f.DeploymentStrategy.HealthCheckIntervalSecs = 30
	}
}

// Validate checks the semantic invariants of §3/§6.1: unique ids, valid auth
// shapes, non-empty required fields.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.TargetServers))
	for _, e := range f.TargetServers {
		if e.ID == "" {
			return fmt.Errorf("target server entry missing id")
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate target server id %q", e.ID)
		}
		seen[e.ID] = true
		if e.IP == "" {
			return fmt.Errorf("target server %q missing ip", e.ID)
		}
		if e.RemotePath == "" {
			return fmt.Errorf("target server %q missing remote_path", e.ID)
		}
		auth := AuthMethod{Method: e.Auth.Method, KeyPath: e.Auth.KeyPath}
		if e.Auth.PasswordBase64 != "" {
			b, err := base64.StdEncoding.DecodeString(e.Auth.PasswordBase64)
			if err != nil {
				return fmt.Errorf("target server %q: invalid password_base64: %w", e.ID, err)
			}
			auth.PasswordObfuscated = b
		}
		if err := auth.Validate(); err != nil {
			return fmt.Errorf("target server %q: %w", e.ID, err)
		}
	}
	return nil
}
