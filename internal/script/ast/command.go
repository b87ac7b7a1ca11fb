package ast

import "strings"

// Command identifies a device command. The set is closed; the executor keeps
// one handler per value.
type Command int

const (
	CmdUnknown Command = iota
	CmdClick
	CmdClickText
	CmdClickID
	CmdInput
	CmdClear
	CmdSwipe
	CmdWait
	CmdWaitElement
	CmdWaitGone
	CmdBack
	CmdHome
	CmdMenu
	CmdRecent
	CmdStartApp
	CmdStopApp
	CmdClearApp
	CmdScreenOn
	CmdScreenOff
	CmdUnlock
	CmdGetText
	CmdGetInfo
	CmdFindElement
	CmdFindElements
	CmdDumpHierarchy
	CmdExists
	CmdLog
	CmdShell
	CmdHumanClick
	CmdHumanDoubleClick
	CmdHumanLongPress
	CmdHumanDrag
	CmdConnect
	CmdGetStatus
	CmdDisconnect
	CmdGetAppVersion
	CmdGetCurrentApp

	commandCount
)

var commandNames = [...]string{
	CmdUnknown:          "",
	CmdClick:            "click",
	CmdClickText:        "click_text",
	CmdClickID:          "click_id",
	CmdInput:            "input",
	CmdClear:            "clear",
	CmdSwipe:            "swipe",
	CmdWait:             "wait",
	CmdWaitElement:      "wait_element",
	CmdWaitGone:         "wait_gone",
	CmdBack:             "back",
	CmdHome:             "home",
	CmdMenu:             "menu",
	CmdRecent:           "recent",
	CmdStartApp:         "start_app",
	CmdStopApp:          "stop_app",
	CmdClearApp:         "clear_app",
	CmdScreenOn:         "screen_on",
	CmdScreenOff:        "screen_off",
	CmdUnlock:           "unlock",
	CmdGetText:          "get_text",
	CmdGetInfo:          "get_info",
	CmdFindElement:      "find_element",
	CmdFindElements:     "find_elements",
	CmdDumpHierarchy:    "dump_hierarchy",
	CmdExists:           "exists",
	CmdLog:              "log",
	CmdShell:            "shell",
	CmdHumanClick:       "human_click",
	CmdHumanDoubleClick: "human_double_click",
	CmdHumanLongPress:   "human_long_press",
	CmdHumanDrag:        "human_drag",
	CmdConnect:          "connect",
	CmdGetStatus:        "get_status",
	CmdDisconnect:       "disconnect",
	CmdGetAppVersion:    "get_app_version",
	CmdGetCurrentApp:    "get_current_app",
}

var commandByName map[string]Command

func init() {
	commandByName = make(map[string]Command, len(commandNames))
	for i, name := range commandNames {
		if name != "" {
			commandByName[name] = Command(i)
		}
	}
}

// String returns the script spelling of the command.
func (c Command) String() string {
	if c < 0 || c >= commandCount {
		return ""
	}
	return commandNames[c]
}

// LookupCommand maps a command name (case-insensitive) to its Command.
func LookupCommand(name string) Command {
	return commandByName[strings.ToLower(name)]
}

// Commands returns every known command, CmdUnknown excluded.
func Commands() []Command {
	out := make([]Command, 0, commandCount-1)
	for c := CmdUnknown + 1; c < commandCount; c++ {
		out = append(out, c)
	}
	return out
}
