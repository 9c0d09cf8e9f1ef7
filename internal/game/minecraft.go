package game

import "strings"

func init() {
	Register(&minecraft{})
}

// minecraft handles vanilla and forked Minecraft servers. The `list`
// command answers like:
//
//	There are 2 of a max of 20 players online: Alice, Bob
type minecraft struct{}

func (m *minecraft) Kind() string              { return "minecraft" }
func (m *minecraft) PlayerListCommand() string { return "list" }
func (m *minecraft) SaveCommand() string       { return "save-all" }
func (m *minecraft) PingCommand() string       { return "list" }

func (m *minecraft) ParsePlayerList(text string) ([]string, error) {
	idx := strings.Index(text, ":")
	if idx < 0 {
		return nil, &ParseError{Kind: m.Kind(), Reason: "missing player list separator"}
	}

	var players []string
	for _, name := range strings.Split(text[idx+1:], ",") {
		if name = strings.TrimSpace(name); name != "" {
			players = append(players, name)
		}
	}

	return players, nil
}
