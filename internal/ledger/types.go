package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ClockObjectID is the shared on-ledger clock passed to time-dependent calls.
const ClockObjectID = "0x6"

var ErrObjectNotFound = errors.New("ledger object not found")

type ArgKind string

const (
	ArgObject ArgKind = "object"
	ArgPure   ArgKind = "pure"
	ArgResult ArgKind = "result"
)

// Arg is one argument of a command: an object reference, a pure value, or the
// handle produced by an earlier command of the same submission.
type Arg struct {
	Kind     ArgKind `json:"kind"`
	ObjectID string  `json:"object_id,omitempty"`
	Type     string  `json:"type,omitempty"`
	Value    any     `json:"value,omitempty"`
	Handle   string  `json:"handle,omitempty"`
}

func ObjectArg(id string) Arg { return Arg{Kind: ArgObject, ObjectID: id} }

func U64(v uint64) Arg { return Arg{Kind: ArgPure, Type: "u64", Value: strconv.FormatUint(v, 10)} }

func Bool(v bool) Arg { return Arg{Kind: ArgPure, Type: "bool", Value: v} }

func String(v string) Arg { return Arg{Kind: ArgPure, Type: "string", Value: v} }

func Address(v string) Arg { return Arg{Kind: ArgPure, Type: "address", Value: v} }

func Result(handle string) Arg { return Arg{Kind: ArgResult, Handle: handle} }

type CommandKind string

const (
	CommandMoveCall        CommandKind = "moveCall"
	CommandTransferObjects CommandKind = "transferObjects"
)

// Command is one step of an atomic submission. Result names the handle the command
// produces, empty when it produces nothing.
type Command struct {
	Kind          CommandKind `json:"kind"`
	Target        string      `json:"target,omitempty"`
	TypeArguments []string    `json:"type_arguments,omitempty"`
	Arguments     []Arg       `json:"arguments"`
	Result        string      `json:"result,omitempty"`
}

type Submission struct {
	Sender   string    `json:"sender"`
	Commands []Command `json:"commands"`
}

type ObjectChange struct {
	Type       string          `json:"type"`
	ObjectID   string          `json:"objectId"`
	ObjectType string          `json:"objectType"`
	Owner      json.RawMessage `json:"owner,omitempty"`
}

type BalanceChange struct {
	Owner    json.RawMessage `json:"owner"`
	CoinType string          `json:"coinType"`
	Amount   string          `json:"amount"`
}

type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

type Event struct {
	ID          EventID         `json:"id"`
	PackageID   string          `json:"packageId"`
	Module      string          `json:"transactionModule"`
	Sender      string          `json:"sender"`
	Type        string          `json:"type"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	TimestampMs string          `json:"timestampMs"`
}

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Effects struct {
	Status ExecutionStatus `json:"status"`
}

// Confirmation is the ledger's answer to a submission.
type Confirmation struct {
	Digest         string          `json:"digest"`
	Effects        Effects         `json:"effects"`
	ObjectChanges  []ObjectChange  `json:"objectChanges"`
	BalanceChanges []BalanceChange `json:"balanceChanges"`
	Events         []Event         `json:"events"`
}

func (c *Confirmation) Succeeded() bool {
	return c.Effects.Status.Status == "success"
}

// CreatedObjects returns created object changes whose type ends with suffix.
func (c *Confirmation) CreatedObjects(typeSuffix string) []ObjectChange {
	var out []ObjectChange
	for _, ch := range c.ObjectChanges {
		if ch.Type == "created" && strings.HasSuffix(ch.ObjectType, typeSuffix) {
			out = append(out, ch)
		}
	}
	return out
}

// Object is a ledger object with its Move fields left raw for strict decoding.
type Object struct {
	ID      string          `json:"objectId"`
	Version string          `json:"version"`
	Type    string          `json:"type"`
	Fields  json.RawMessage `json:"fields"`
}

type EventFilter struct {
	MoveEventType string
	Package       string
	Module        string
}

type EventQuery struct {
	Filter EventFilter
	Cursor *EventID
	Limit  int
}

type EventPage struct {
	Data        []Event  `json:"data"`
	NextCursor  *EventID `json:"nextCursor"`
	HasNextPage bool     `json:"hasNextPage"`
}

// Submitter executes an ordered command list as one atomic unit. Signing happens
// behind this interface.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (*Confirmation, error)
}

type ObjectReader interface {
	GetObject(ctx context.Context, id string) (*Object, error)
}

type EventReader interface {
	QueryEvents(ctx context.Context, q EventQuery) (*EventPage, error)
}
