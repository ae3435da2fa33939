package app

import (
	"fmt"

	"github.com/Shopify/go-lua"
)

const luaToolLibrary = "Tool"

// LoadLuaScript runs a Lua tool script and returns the commands it issued, in
// call order. The script drives a global Tool table:
//
//	Tool.page(1)
//	Tool.tool("marker")
//	Tool.down(0.1, 0.2, 0.5)
//	for i = 1, 10 do Tool.move(0.1 + i / 20, 0.2) end
//	Tool.up(0.6, 0.2)
//
// along with Tool.seek(position), Tool.edit(bool), Tool.cut(from, to) and
// Tool.wait().
func LoadLuaScript(path string) ([]Command, error) {
	commands := []Command{}
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerToolLibrary(state, &commands)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua script: %w", err)
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("run lua script: %w", err)
	}
	return commands, nil
}

func registerToolLibrary(state *lua.State, commands *[]Command) {
	emit := func(cmd Command) int {
		*commands = append(*commands, cmd)
		return 0
	}
	pointer := func(op string) lua.Function {
		return func(state *lua.State) int {
			return emit(Command{
				Op:       op,
				X:        lua.CheckNumber(state, 1),
				Y:        lua.CheckNumber(state, 2),
				Pressure: lua.OptNumber(state, 3, 0),
			})
		}
	}

	functions := []lua.RegistryFunction{
		{Name: "page", Function: func(state *lua.State) int {
			return emit(Command{Op: CommandPage, Page: lua.CheckInteger(state, 1)})
		}},
		{Name: "seek", Function: func(state *lua.State) int {
			return emit(Command{Op: CommandSeek, Position: lua.CheckNumber(state, 1)})
		}},
		{Name: "tool", Function: func(state *lua.State) int {
			return emit(Command{Op: CommandTool, Tool: lua.CheckString(state, 1)})
		}},
		{Name: "edit", Function: func(state *lua.State) int {
			lua.CheckType(state, 1, lua.TypeBoolean)
			return emit(Command{Op: CommandEdit, Editing: state.ToBoolean(1)})
		}},
		{Name: "down", Function: pointer(CommandBegin)},
		{Name: "move", Function: pointer(CommandMove)},
		{Name: "up", Function: pointer(CommandEnd)},
		{Name: "cut", Function: func(state *lua.State) int {
			return emit(Command{Op: CommandCut, From: lua.CheckNumber(state, 1), To: lua.CheckNumber(state, 2)})
		}},
		{Name: "wait", Function: func(*lua.State) int {
			return emit(Command{Op: CommandWait})
		}},
	}

	state.NewTable()
	lua.SetFunctions(state, functions, 0)
	state.SetGlobal(luaToolLibrary)
}
