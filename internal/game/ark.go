package game

import (
	"regexp"
	"strings"
)

func init() {
	Register(&ark{})
}

var arkNameRe = regexp.MustCompile(`Name: (.+?)\n`)

// ark handles ARK: Survival Ascended servers. `ListPlayers` reports one
// block per player containing a "Name: ..." line, or the literal string
// "No Players Connected" when the server is empty.
type ark struct{}

func (a *ark) Kind() string              { return "ark" }
func (a *ark) PlayerListCommand() string { return "ListPlayers" }
func (a *ark) SaveCommand() string       { return "SaveWorld" }
func (a *ark) PingCommand() string       { return "GetGameLog" }

func (a *ark) ParsePlayerList(text string) ([]string, error) {
	if strings.Contains(text, "No Players Connected") {
		return nil, nil
	}

	matches := arkNameRe.FindAllStringSubmatch(text+"\n", -1)
	if matches == nil {
		return nil, &ParseError{Kind: a.Kind(), Reason: "no player entries recognized"}
	}

	var players []string
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name != "" && !strings.HasPrefix(name, "ID:") {
			players = append(players, name)
		}
	}

	return players, nil
}
