package main

import (
	"errors"
	"fmt"
	"strings"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdJoin
	cmdLeave
	cmdSend
	cmdGroups
	cmdHelp
	cmdQuit
)

// lineCommand is one parsed line of chat input.
type lineCommand struct {
	Kind  commandKind
	Group string
	Text  string
}

var errEmptyLine = errors.New("empty line")

// parseLine turns one input line into a command. Lines not starting with
// "/" are said to the current group.
func parseLine(line string) (lineCommand, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return lineCommand{}, errEmptyLine
	}
	if !strings.HasPrefix(trimmed, "/") {
		return lineCommand{Kind: cmdSay, Text: trimmed}, nil
	}

	name, rest, _ := strings.Cut(trimmed[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "join", "j":
		group, err := singleGroup(name, rest)
		return lineCommand{Kind: cmdJoin, Group: group}, err
	case "leave", "l":
		group, err := singleGroup(name, rest)
		return lineCommand{Kind: cmdLeave, Group: group}, err
	case "send", "s":
		group, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if group == "" || text == "" {
			return lineCommand{}, fmt.Errorf("usage: /%s <group> <text>", name)
		}
		return lineCommand{Kind: cmdSend, Group: group, Text: text}, nil
	case "groups", "g":
		return lineCommand{Kind: cmdGroups}, nil
	case "help", "h", "?":
		return lineCommand{Kind: cmdHelp}, nil
	case "quit", "q", "exit":
		return lineCommand{Kind: cmdQuit}, nil
	default:
		return lineCommand{}, fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

func singleGroup(name, rest string) (string, error) {
	if rest == "" || strings.ContainsAny(rest, " \t") {
		return "", fmt.Errorf("usage: /%s <group>", name)
	}
	return rest, nil
}

const helpText = `commands:
  /join <group>          join a group, or switch to it if already joined
  /leave <group>         leave a group
  /send <group> <text>   send text to any group
  /groups                list joined groups
  /quit                  disconnect and exit
anything else is sent to the current group`
