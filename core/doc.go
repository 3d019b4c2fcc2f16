// Package core contains the canonical event domain model, configuration, and
// the contracts the ingestion pipeline and storage adapters are built
// against. Adapters depend on core; core must not depend on transport or
// storage packages.
package core
