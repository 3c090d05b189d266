package instrumentation

// Operation types for Google API metrics.
const (
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
)

// Trigger phases.
const (
	PhaseCreate = "create"
	PhaseUpdate = "update"
	PhaseDelete = "delete"
)

// Sync outcomes. A skipped trigger made no remote call.
const (
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Surfaces a callable can be invoked through.
const (
	SurfaceHTTP = "http"
	SurfaceMCP  = "mcp"
)

var knownCollections = map[string]bool{
	"tasks":       true,
	"projects":    true,
	"simpleTasks": true,
}

// CollectionLabel bounds the collection label to the synchronized collections.
// Anything else is reported as "other" so malformed webhook input cannot
// inflate metric cardinality.
func CollectionLabel(collection string) string {
	if knownCollections[collection] {
		return collection
	}
	return "other"
}
