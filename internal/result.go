package internal

type Stage string

func (s Stage) String() string {
	return string(s)
}

const (
	StageExtract  Stage = "extract"
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageUpstream Stage = "upstream"
)

// ErrorInfo describes where a command failed. It is created by the failing
// stage and never modified afterwards.
type ErrorInfo struct {
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func NewErrorInfo(stage Stage, message string) *ErrorInfo {
	return &ErrorInfo{
		Stage:   stage,
		Message: message,
		// Only backend failures may be transient.
		Retryable: stage == StageUpstream,
	}
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Stage) + ": " + e.Message
}

// Result is the canonical outcome of interpreting one command.
type Result struct {
	OK    bool           `json:"ok"`
	Kind  Kind           `json:"kind,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Error *ErrorInfo     `json:"error,omitempty"`
}

func Succeeded(kind Kind, data map[string]any) Result {
	return Result{OK: true, Kind: kind, Data: data}
}

func Failed(kind Kind, stage Stage, message string) Result {
	return Result{Kind: kind, Error: NewErrorInfo(stage, message)}
}

// IsCommand reports whether the text carried a command at all. Extract and
// parse failures mean the text must be handled as plain prose.
func (r Result) IsCommand() bool {
	if r.OK || r.Error == nil {
		return true
	}
	return r.Error.Stage != StageExtract && r.Error.Stage != StageParse
}
