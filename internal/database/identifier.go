package database

import (
	"regexp"

	"github.com/varoOP/anicachedb/internal/domain"
)

// TableKind enumerates the only per-source storage objects this module is
// allowed to address. Dynamic table names can never be bound as SQL
// parameters, so the shapes themselves are a closed set: anything outside it
// is unrepresentable.
type TableKind int

const (
	TableTitles TableKind = iota
	TableMetadata
)

// Fixed system table names, never derived from caller input.
const (
	tableCache        = "persistent_cache"
	tableTransactions = "search_transactions"
	tableSchemaMeta   = "schema_metadata"
)

// Source names must start with a letter and contain only letters, digits and
// underscores.
var sourcePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateSource checks a source name against the allowed pattern.
func ValidateSource(source string) error {
	if !sourcePattern.MatchString(source) {
		return &domain.IdentifierError{Name: source, Source: source}
	}
	return nil
}

// TableName returns the storage-object name for a source and kind, or an
// IdentifierError when the source name is not allowed.
func TableName(source string, kind TableKind) (string, error) {
	if err := ValidateSource(source); err != nil {
		return "", err
	}
	switch kind {
	case TableTitles:
		return source + "_titles", nil
	case TableMetadata:
		return source + "_metadata", nil
	default:
		return "", &domain.IdentifierError{Name: "unknown table kind", Source: source}
	}
}

// tableFor validates and resolves a per-source table name, logging a security
// event on rejection. No query is ever built from a rejected name.
func (db *DB) tableFor(source string, kind TableKind) (string, error) {
	name, err := TableName(source, kind)
	if err != nil {
		db.log.Warn().
			Bool("security_event", true).
			Str("event_type", "table_validation_failure").
			Str("source", source).
			Msg("rejected dynamic table name")
		return "", err
	}
	return name, nil
}
