package scenarios

import (
	"context"

	"dev/bravebird/messenger-e2e/pkg/models"
)

// Func is a scenario body
type Func func(ctx context.Context, env *Env) error

// Scenario is one named user-action test
type Scenario struct {
	Name    string
	Fixture models.FixtureKind
	Run     Func
}

// Info describes s for listings
func (s Scenario) Info() models.ScenarioInfo {
	return models.ScenarioInfo{Name: s.Name, Fixture: s.Fixture}
}

var registry = []Scenario{
	{Name: "Create contact", Fixture: models.FixtureTwoWindows, Run: createContact},
	{Name: "Block user in conversation list", Fixture: models.FixtureAlice1WBob1W, Run: blockUserInConversationList},
	{Name: "Change username", Fixture: models.FixtureAlice1WNoNetwork, Run: changeUsername},
	{Name: "Change avatar", Fixture: models.FixtureAlice1WNoNetwork, Run: changeAvatar},
	{Name: "Set nickname", Fixture: models.FixtureAlice1WBob1W, Run: setNickname},
	{Name: "Read status", Fixture: models.FixtureAlice1WBob1W, Run: readStatus},
}

// All returns the suite in declaration order
func All() []Scenario {
	return append([]Scenario(nil), registry...)
}

// Lookup finds a scenario by its exact name
func Lookup(name string) (Scenario, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Infos lists every scenario
func Infos() []models.ScenarioInfo {
	out := make([]models.ScenarioInfo, 0, len(registry))
	for _, s := range registry {
		out = append(out, s.Info())
	}
	return out
}
