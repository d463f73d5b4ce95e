package processing

// ForwardsDropColumns are identifiers and raw categorical columns removed
// before the forwards model sees the data.
var ForwardsDropColumns = []string{
	"player", "country", "signed_from", "squad", "player_id",
	"annual_wages_euros", "age_range", "rk", "nation", "pos", "comp", "born",
	"general_pos", "is_youth_player",
}

// ForwardsSteps returns the cleaning chain applied to attacking players
// before training or prediction.
func ForwardsSteps() []Processor {
	zeroWhenZero := func(source, target string) Processor {
		return ConditionImputer{Features: []string{source, target}, Condition: 0, Value: 0}
	}
	return []Processor{
		YouthPlayerFeature(),
		ConditionImputer{
			Features:  []string{"is_youth_player", "signing_fee_euro_mill"},
			Condition: "True",
			Value:     0,
		},
		GroupbyImputer{
			Features: []string{"signing_fee_euro_mill"},
			GroupBy:  []string{"league", "age"},
			Strategy: StrategyMedian,
		},
		GroupbyImputer{
			Features: []string{"market_value_euro_mill"},
			GroupBy:  []string{"league", "age"},
			Strategy: StrategyMedian,
		},
		FillnaImputer{Features: []string{"signed_from"}, Value: "Unknown"},
		FillnaImputer{Features: []string{"signed_year"}, ColumnFill: "season"},
		FillnaImputer{Features: []string{"foot"}, Method: "mode"},
		zeroWhenZero("shots_on_target", "goals_per_shot_on_target"),
		zeroWhenZero("shots", "avg_shot_distance"),
		GroupbyImputer{
			Features: []string{"avg_shot_distance"},
			GroupBy:  []string{"position"},
			Strategy: StrategyMedian,
		},
		zeroWhenZero("shots", "goals_per_shot"),
		zeroWhenZero("shots", "shots_on_target_pct"),
		zeroWhenZero("long_passes_attempted", "long_pass_completion_pct"),
		zeroWhenZero("medium_passes_completed", "medium_pass_completion_pct"),
		zeroWhenZero("short_passes_completed", "short_pass_completion_pct"),
		zeroWhenZero("passes_attempted", "pass_completion_pct"),
		DropNA{},
		DropColumns{Columns: ForwardsDropColumns},
	}
}

// ForwardsPreprocessor wraps ForwardsSteps in a composer
func ForwardsPreprocessor(opts ...Option) *Composer {
	return NewComposer("forwards_preprocessor", ForwardsSteps(), opts...)
}
