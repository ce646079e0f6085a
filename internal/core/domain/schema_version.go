package domain

import (
	"strings"
)

// SchemaVersion is the canonical url form of a credential schema version
type SchemaVersion string

// Supported schema versions
const (
	SchemaVersionOAV2 SchemaVersion = "https://schema.openattestation.com/2.0/schema.json"
	SchemaVersionOAV3 SchemaVersion = "https://schema.openattestation.com/3.0/schema.json"
)

var schemaAliases = map[string]SchemaVersion{
	"open-attestation/2.0":    SchemaVersionOAV2,
	"open-attestation/3.0":    SchemaVersionOAV3,
	"2.0":                     SchemaVersionOAV2,
	"3.0":                     SchemaVersionOAV3,
	string(SchemaVersionOAV2): SchemaVersionOAV2,
	string(SchemaVersionOAV3): SchemaVersionOAV3,
}

// ParseSchemaVersion normalizes a long form url or a short alias into a SchemaVersion
func ParseSchemaVersion(v string) (SchemaVersion, error) {
	sv, ok := schemaAliases[strings.TrimSpace(strings.ToLower(v))]
	if !ok {
		return "", NewDocumentError(v, ErrUnknownVersion)
	}
	return sv, nil
}

func (v SchemaVersion) String() string { return string(v) }
