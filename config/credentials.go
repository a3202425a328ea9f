package config

import (
	"encoding/json"
	"os"
	"strings"
)

// CredentialKind tags how a video-generation credential should be used.
type CredentialKind int

const (
	// CredentialAmbient defers to application default credentials.
	CredentialAmbient CredentialKind = iota
	// CredentialServiceIdentityFile is a path to a service account JSON file.
	CredentialServiceIdentityFile
	// CredentialInlineServiceIdentity is service account JSON passed directly.
	CredentialInlineServiceIdentity
	// CredentialBearerToken is an OAuth bearer token.
	CredentialBearerToken
)

// CredentialSource is a credential resolved into its tagged form. Resolution
// happens once at configuration time, never per call.
type CredentialSource struct {
	Kind  CredentialKind
	Value string
}

// ResolveCredential classifies a raw credential string. An empty string means
// ambient default credentials.
func ResolveCredential(raw string) CredentialSource {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return CredentialSource{Kind: CredentialAmbient}
	case strings.HasPrefix(raw, "{"):
		if json.Valid([]byte(raw)) {
			return CredentialSource{Kind: CredentialInlineServiceIdentity, Value: raw}
		}
		return CredentialSource{Kind: CredentialBearerToken, Value: raw}
	default:
		if st, err := os.Stat(raw); err == nil && !st.IsDir() {
			return CredentialSource{Kind: CredentialServiceIdentityFile, Value: raw}
		}
		return CredentialSource{Kind: CredentialBearerToken, Value: raw}
	}
}
