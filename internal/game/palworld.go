package game

import "strings"

func init() {
	Register(&palworld{})
}

// palworld handles Palworld dedicated servers. `ShowPlayers` returns CSV,
// one player per line after a header:
//
//	name,playeruid,steamid
//	Alice,123456789,76561198000000001
type palworld struct{}

func (p *palworld) Kind() string              { return "palworld" }
func (p *palworld) PlayerListCommand() string { return "ShowPlayers" }
func (p *palworld) SaveCommand() string       { return "Save" }
func (p *palworld) PingCommand() string       { return "Info" }

func (p *palworld) ParsePlayerList(text string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "name") {
		return nil, &ParseError{Kind: p.Kind(), Reason: "missing CSV header"}
	}

	var players []string
	for _, line := range lines[1:] {
		name, _, _ := strings.Cut(line, ",")
		if name = strings.TrimSpace(name); name != "" {
			players = append(players, name)
		}
	}

	return players, nil
}
