/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package directive

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Medium is a shared resource class a directive may occupy while handled.
type Medium int

const (
	MediumNone Medium = iota
	MediumAudio
	MediumVisual
	MediumAny
)

var mediumNames = map[Medium]string{
	MediumNone:   "none",
	MediumAudio:  "audio",
	MediumVisual: "visual",
	MediumAny:    "any",
}

func (m Medium) String() string {
	if name, ok := mediumNames[m]; ok {
		return name
	}
	return fmt.Sprintf("medium(%d)", int(m))
}

// ParseMedium converts a medium name to a Medium.
func ParseMedium(s string) (Medium, error) {
	for m, name := range mediumNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return MediumNone, fmt.Errorf("unknown medium %q", s)
}

func (m Medium) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Medium) UnmarshalText(text []byte) error {
	parsed, err := ParseMedium(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// BlockingPolicy describes the medium a directive occupies and whether it
// excludes other directives of the same dialog on that medium.
type BlockingPolicy struct {
	Medium   Medium `json:"medium" yaml:"medium"`
	Blocking bool   `json:"blocking" yaml:"blocking"`
}

// Common policies used by capability agents.
var (
	PolicyNonBlocking   = BlockingPolicy{Medium: MediumNone}
	PolicyAudioBlocking = BlockingPolicy{Medium: MediumAudio, Blocking: true}
	PolicyAudio         = BlockingPolicy{Medium: MediumAudio}
	PolicyVisual        = BlockingPolicy{Medium: MediumVisual}
	PolicyAnyBlocking   = BlockingPolicy{Medium: MediumAny, Blocking: true}
)

// Header identifies a directive or attachment on the wire.
type Header struct {
	Namespace               string `json:"namespace"`
	Name                    string `json:"name"`
	Version                 string `json:"version,omitempty"`
	DialogRequestID         string `json:"dialogRequestId"`
	MessageID               string `json:"messageId"`
	ReferrerDialogRequestID string `json:"referrerDialogRequestId,omitempty"`
}

// Type returns the dispatch key "namespace.name".
func (h Header) Type() string {
	return h.Namespace + "." + h.Name
}

func (h Header) String() string {
	return fmt.Sprintf("%s dialog=%s message=%s", h.Type(), h.DialogRequestID, h.MessageID)
}

// Directive is a single server-issued instruction.
type Directive struct {
	Header  Header          `json:"header"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Type returns the dispatch key of the directive.
func (d Directive) Type() string { return d.Header.Type() }

// Attachment is binary data that follows a directive, such as audio frames.
type Attachment struct {
	Header          Header `json:"header"`
	ParentMessageID string `json:"parentMessageId"`
	Seq             int    `json:"seq"`
	IsEnd           bool   `json:"isEnd"`
	MediaType       string `json:"mediaType,omitempty"`
	Content         []byte `json:"-"`
}

// CancelPolicy describes which directives of a dialog stop being dispatched.
type CancelPolicy struct {
	CancelAll     bool     `json:"cancelAll"`
	CancelTargets []string `json:"cancelTargets,omitempty"`
}

// CancelAll cancels every remaining directive of a dialog.
var CancelAll = CancelPolicy{CancelAll: true}

// Cancels reports whether the policy cancels anything at all.
func (p CancelPolicy) Cancels() bool {
	return p.CancelAll || len(p.CancelTargets) > 0
}

// merge combines two cancels of the same dialog.
func (p CancelPolicy) merge(other CancelPolicy) CancelPolicy {
	out := CancelPolicy{CancelAll: p.CancelAll || other.CancelAll}
	if out.CancelAll {
		return out
	}
	seen := make(map[string]bool, len(p.CancelTargets)+len(other.CancelTargets))
	for _, target := range append(append([]string(nil), p.CancelTargets...), other.CancelTargets...) {
		if seen[target] {
			continue
		}
		seen[target] = true
		out.CancelTargets = append(out.CancelTargets, target)
	}
	return out
}

// Covers reports whether the policy cancels directives of directiveType.
func (p CancelPolicy) Covers(directiveType string) bool {
	if p.CancelAll {
		return true
	}
	for _, target := range p.CancelTargets {
		if target == directiveType {
			return true
		}
	}
	return false
}

// ResultKind is the outcome reported by a handler.
type ResultKind int

const (
	ResultFinished ResultKind = iota
	ResultFailed
	ResultCanceled
	ResultStopped
)

func (k ResultKind) String() string {
	switch k {
	case ResultFinished:
		return "finished"
	case ResultFailed:
		return "failed"
	case ResultCanceled:
		return "canceled"
	case ResultStopped:
		return "stopped"
	default:
		return fmt.Sprintf("result(%d)", int(k))
	}
}

// Result is the outcome of handling a directive.
type Result struct {
	Kind         ResultKind
	Description  string
	CancelPolicy CancelPolicy
}

// Finished reports normal completion.
func Finished() Result { return Result{Kind: ResultFinished} }

// Failed reports a failure with a description.
func Failed(description string) Result {
	return Result{Kind: ResultFailed, Description: description}
}

// Canceled reports that the directive was canceled before or while handling.
func Canceled() Result { return Result{Kind: ResultCanceled} }

// Stopped reports that handling stopped early, cascading policy to the rest of the dialog.
func Stopped(policy CancelPolicy) Result {
	return Result{Kind: ResultStopped, CancelPolicy: policy}
}

func (r Result) String() string {
	switch r.Kind {
	case ResultFailed:
		return "failed(" + r.Description + ")"
	case ResultStopped:
		if r.CancelPolicy.CancelAll {
			return "stopped(cancelAll)"
		}
		return "stopped(" + strings.Join(r.CancelPolicy.CancelTargets, ",") + ")"
	default:
		return r.Kind.String()
	}
}
