package quest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	kill5 := Requirement{Action: "kill_slime", Target: 5}

	tests := []struct {
		name    string
		req     Requirement
		prior   int
		action  string
		payload ActionPayload
		want    int
	}{
		{"matching action increments", kill5, 0, "kill_slime", ActionPayload{}, 1},
		{"non-matching action is a no-op", kill5, 2, "kill_wolf", ActionPayload{}, 2},
		{"amount adds in bulk", kill5, 1, "kill_slime", ActionPayload{Amount: 3}, 4},
		{"overshoot clamps to target", kill5, 4, "kill_slime", ActionPayload{Amount: 10}, 5},
		{"at target stays at target", kill5, 5, "kill_slime", ActionPayload{}, 5},
		{"zero amount defaults to one", kill5, 0, "kill_slime", ActionPayload{Amount: 0}, 1},
		{
			"level gate blocks low level",
			Requirement{Action: "kill_slime", Target: 5, Conditions: Conditions{MinLevel: 10}},
			0, "kill_slime", ActionPayload{ActorLevel: 3}, 0,
		},
		{
			"level gate passes at threshold",
			Requirement{Action: "kill_slime", Target: 5, Conditions: Conditions{MinLevel: 10}},
			0, "kill_slime", ActionPayload{ActorLevel: 10}, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.req, tt.prior, tt.action, tt.payload)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	req := Requirement{Action: "feed_pet", Target: 3}
	payload := ActionPayload{Amount: 2}
	first := Evaluate(req, 1, "feed_pet", payload)
	second := Evaluate(req, 1, "feed_pet", payload)
	assert.Equal(t, first, second)
}
