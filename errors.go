/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

// Errors surfaced to a single client as an "error" event. Anything else
// (timer races, stale handles) is swallowed after a defensive re-check.
var (
	errAlreadyInRoom  = errors.New("you are already in a room")
	errCodeSpace      = errors.New("no room codes available, please try again")
	errEmptyAnswer    = errors.New("answers cannot be empty")
	errEmptyMessage   = errors.New("messages cannot be empty")
	errNotHost        = errors.New("only the host can do that")
	errNotInRoom      = errors.New("you have not joined a room")
	errNotJoinable    = errors.New("that room can no longer be joined")
	errRoomFull       = errors.New("that room is full")
	errRoomNotFound   = errors.New("that room does not exist")
	errTooFewPlayers  = errors.New("at least 3 players are needed to start")
	errUnknownPlayer  = errors.New("no such player in this room")
	errWrongPhase     = errors.New("that action is not available right now")
	errBadRoomCode    = errors.New("room codes are 4 characters")
	errUnknownIntent  = errors.New("unrecognized event")
	errMalformedVote  = errors.New("that vote target is not in this room")
	errSelfKick       = errors.New("the host cannot kick themselves")
	errBadWinSetting  = errors.New("win condition must be score or rounds, with a positive target")
	errBadTimerValues = errors.New("phase timers must be positive")
)

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
