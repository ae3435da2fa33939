package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// Script commands.
const (
	CommandPage  = "page"
	CommandSeek  = "seek"
	CommandTool  = "tool"
	CommandEdit  = "edit"
	CommandBegin = "begin"
	CommandMove  = "move"
	CommandEnd   = "end"
	CommandWait  = "wait"
	CommandCut   = "cut"
)

// Command is one line of a tool input script, for example
//
//	{"op":"seek","position":0.25}
//	{"op":"begin","x":0.1,"y":0.2,"pressure":0.5}
//	{"op":"cut","from":0.4,"to":0.6}
type Command struct {
	Op       string  `json:"op"`
	Page     int     `json:"page,omitempty"`
	Position float64 `json:"position,omitempty"`
	Tool     string  `json:"tool,omitempty"`
	Editing  bool    `json:"editing,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Pressure float64 `json:"pressure,omitempty"`
	From     float64 `json:"from,omitempty"`
	To       float64 `json:"to,omitempty"`
}

func (c Command) point() domain.Point {
	return domain.Point{X: c.X, Y: c.Y, Pressure: c.Pressure}
}

// ParseScript reads JSON-lines commands. Blank lines and lines starting with
// '#' are ignored.
func ParseScript(r io.Reader) ([]Command, error) {
	var commands []Command
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var cmd Command
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return nil, fmt.Errorf("script line %d: %w", line, err)
		}
		switch cmd.Op {
		case CommandPage, CommandSeek, CommandTool, CommandEdit, CommandBegin, CommandMove, CommandEnd, CommandWait, CommandCut:
		default:
			return nil, fmt.Errorf("script line %d: unknown op %q", line, cmd.Op)
		}
		commands = append(commands, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return commands, nil
}

// Replay drives the controller with commands in order. A wait command blocks
// until everything issued before it is applied.
func (c *ToolController) Replay(ctx context.Context, commands []Command) error {
	for i, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.apply(ctx, cmd); err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, cmd.Op, err)
		}
	}
	return nil
}

// apply reports session misuse as a *domain.TransitionError.
func (c *ToolController) apply(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			transition, ok := r.(*domain.TransitionError)
			if !ok {
				panic(r)
			}
			err = transition
		}
	}()

	switch cmd.Op {
	case CommandPage:
		return c.SelectPage(cmd.Page)
	case CommandSeek:
		return c.Seek(cmd.Position)
	case CommandTool:
		c.SelectTool(cmd.Tool)
	case CommandEdit:
		_, err := c.SetIsEditing(cmd.Editing)
		return err
	case CommandBegin:
		c.BeginToolAction(cmd.point())
	case CommandMove:
		c.ExecuteToolAction(cmd.point())
	case CommandEnd:
		c.EndToolAction(cmd.point())
	case CommandWait:
		return c.Wait(ctx)
	case CommandCut:
		_, err := c.Cut(cmd.From, cmd.To)
		return err
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
	return nil
}
