package diag

// Diagnostic is one finding about one input.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Input    string
	Message  string
	Notes    []string
}

func New(sev Severity, code Code, input, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Input: input, Message: msg}
}

func NewError(code Code, input, msg string) Diagnostic {
	return New(SevError, code, input, msg)
}

func (d Diagnostic) WithNote(msg string) Diagnostic {
	d.Notes = append(d.Notes, msg)
	return d
}
