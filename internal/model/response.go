package model

import (
	"errors"
	"fmt"
	"strings"
)

// ResponseCode is the classified reply a user sends back to the coordinator.
type ResponseCode string

const (
	ResponseYes    ResponseCode = "YES_SINGLE_TAP"
	ResponseNo     ResponseCode = "NO_DOUBLE_TAP"
	ResponseRepeat ResponseCode = "REPEAT_HOLD_2S"
	ResponseHelp   ResponseCode = "HELP_HOLD_5S"
)

var ErrUnknownResponseCode = errors.New("unknown response code")

var responseLabels = map[ResponseCode]string{
	ResponseYes:    "Acknowledge / Yes",
	ResponseNo:     "No / can't comply",
	ResponseRepeat: "Repeat / clarify",
	ResponseHelp:   "Help / emergency",
}

// ResponseCodes lists the codes in gesture order: tap, double tap, 2s hold, 5s hold.
var ResponseCodes = []ResponseCode{ResponseYes, ResponseNo, ResponseRepeat, ResponseHelp}

// Label returns the fixed human-readable label for the code, or the code
// itself when it is not part of the closed set.
func (c ResponseCode) Label() string {
	if l, ok := responseLabels[c]; ok {
		return l
	}
	return string(c)
}

func (c ResponseCode) Valid() bool {
	_, ok := responseLabels[c]
	return ok
}

// ParseResponseCode accepts a code name in any case.
func ParseResponseCode(s string) (ResponseCode, error) {
	c := ResponseCode(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownResponseCode, s)
	}
	return c, nil
}

// Response is the body POSTed to /api/response.
type Response struct {
	Code  ResponseCode `json:"code"`
	Label string       `json:"label"`
	User  string       `json:"user"`
	Role  Role         `json:"role"`
}
