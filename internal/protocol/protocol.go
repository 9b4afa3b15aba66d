// Package protocol defines the wire model for the forge-mcp request/response
// protocol: request envelopes, execution results, diagnostics, and the stable
// error code taxonomy shared by every tool and pipeline stage.
package protocol

// ProtocolPrefix is the accepted major-version prefix. Requests carrying a
// protocol string that does not start with this prefix are rejected before
// any tool code runs.
const ProtocolPrefix = "forge-mcp/1"

// DefaultProtocol is assumed when a request omits the protocol field.
const DefaultProtocol = "forge-mcp/1.0"

// DefaultSessionID is assumed when a request omits session_id.
const DefaultSessionID = "default-session"

// DefaultTimeoutMs applies when the request carries no timeout override.
const DefaultTimeoutMs = int64(30000)

// Stable error codes. Tools and pipeline stages must use these rather than
// inventing ad-hoc strings; clients key retry and reporting logic off them.
const (
	CodeSchemaInvalidParams    = "SCHEMA_INVALID_PARAMS"
	CodeToolNotFound           = "TOOL_NOT_FOUND"
	CodeObjectNotFound         = "OBJECT_NOT_FOUND"
	CodeAssetNotFound          = "ASSET_NOT_FOUND"
	CodePropertyNotEditable    = "PROPERTY_NOT_EDITABLE"
	CodeSerializeUnsupported   = "SERIALIZE_UNSUPPORTED_TYPE"
	CodeLockConflict           = "LOCK_CONFLICT"
	CodeEditorUnsafeState      = "EDITOR_UNSAFE_STATE"
	CodePolicyDenied           = "POLICY_DENIED"
	CodeIdempotencyConflict    = "IDEMPOTENCY_CONFLICT"
	CodeJobTimeout             = "JOB_TIMEOUT"
	CodeJobCanceled            = "JOB_CANCELED"
	CodeJobNotFound            = "JOB_NOT_FOUND"
	CodeInternalException      = "INTERNAL_EXCEPTION"
	CodeAssetAlreadyExists     = "ASSET_ALREADY_EXISTS"
	CodeAssetCreateFailed      = "ASSET_CREATE_FAILED"
	CodeAssetDeleteFailed      = "ASSET_DELETE_FAILED"
	CodeAssetSaveFailed        = "ASSET_SAVE_FAILED"
	CodeConfirmationRequired   = "CONFIRMATION_REQUIRED"
	CodeChangeSetNotFound      = "CHANGESET_NOT_FOUND"
	CodeRollbackFailed         = "ROLLBACK_FAILED"
)

// Severity buckets a diagnostic into one of the three response arrays.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is a structured, machine-readable finding attached to a
// response. Retriable hints that the same request may succeed later; the
// router never retries on the caller's behalf.
type Diagnostic struct {
	Severity   Severity `json:"-"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Retriable  bool     `json:"retriable"`
	Detail     string   `json:"detail,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Errorf builds an error-severity diagnostic.
func Errorf(code, message string) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, Message: message}
}

// Warnf builds a warning-severity diagnostic.
func Warnf(code, message string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Code: code, Message: message}
}

// Infof builds an info-severity diagnostic.
func Infof(code, message string) Diagnostic {
	return Diagnostic{Severity: SeverityInfo, Code: code, Message: message}
}

// Status is the tri-state outcome of a request.
type Status string

const (
	StatusOk      Status = "ok"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// RequestEnvelope is the parsed form of an incoming request. The execution
// controls (idempotency key, timeout, cancel token, dry run) arrive nested
// under the request's "context" object. Fields that are optional on the wire
// keep a Has* flag so the pipeline can distinguish "absent" from "zero".
type RequestEnvelope struct {
	Protocol  string
	RequestID string
	SessionID string
	Tool      string
	Params    map[string]any

	ProjectID          string
	WorkspaceID        string
	EngineVersion      string
	Deterministic      bool
	DryRun             bool
	IdempotencyKey     string
	TimeoutMs          int64
	HasTimeoutOverride bool
	CancelToken        string
	HasCancelToken     bool
}

// Artifact describes a side product of tool execution, surfaced both in the
// response and as event.artifact stream events.
type Artifact struct {
	ObjectPath string `json:"object_path"`
	Action     string `json:"action"`
}

// ExecutionResult accumulates everything a tool handler produces. The router
// owns ChangeSetID and IdempotentReplay; handlers fill the rest.
type ExecutionResult struct {
	Status           Status
	Result           map[string]any
	Diagnostics      []Diagnostic
	TouchedResources []string
	Artifacts        []Artifact
	ChangeSetID      string
	IdempotentReplay bool

	// ChangedProperties and Snapshots feed change-set records; neither is
	// serialized directly. Snapshots map object paths to their
	// pre-mutation canonical JSON.
	ChangedProperties []string
	Snapshots         map[string]string
}

// NewResult returns an ok result with an allocated result object.
func NewResult() *ExecutionResult {
	return &ExecutionResult{Status: StatusOk, Result: map[string]any{}}
}

// Fail records an error diagnostic and forces error status.
func (r *ExecutionResult) Fail(d Diagnostic) {
	d.Severity = SeverityError
	r.Status = StatusError
	r.Diagnostics = append(r.Diagnostics, d)
}

// Warn records a warning diagnostic without changing status.
func (r *ExecutionResult) Warn(d Diagnostic) {
	d.Severity = SeverityWarning
	r.Diagnostics = append(r.Diagnostics, d)
}

// Info records an info diagnostic without changing status.
func (r *ExecutionResult) Info(d Diagnostic) {
	d.Severity = SeverityInfo
	r.Diagnostics = append(r.Diagnostics, d)
}

// Touch records a touched resource path, deduplicated, order preserved.
func (r *ExecutionResult) Touch(path string) {
	for _, p := range r.TouchedResources {
		if p == path {
			return
		}
	}
	r.TouchedResources = append(r.TouchedResources, path)
}
