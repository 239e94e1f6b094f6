package sim

import (
	"fmt"
	"math"

	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/player"
)

// Possession actions.
const (
	actionAtRim      = "at_rim"
	actionMidRange   = "mid_range"
	actionThreePoint = "three_point"
	actionDrive      = "drive"
	actionPostUp     = "post_up"
)

// Defense schemes.
const (
	schemeManTight  = "man_tight"
	schemeManSwitch = "man_switch"
	schemeZone      = "zone"
	schemePress     = "press"
)

// possessionContext carries the hook-installed modifiers for one possession.
type possessionContext struct {
	shotProbabilityMod float64
	shotValueMod       float64
	extraStaminaDrain  float64
	threePointBias     float64
	rimBias            float64
	turnoverMod        float64
	randomEjectionProb float64
	bonusPassCount     int
}

// runPossession resolves one possession through the ordered pipeline:
// hooks, scheme, matchups, action, turnover, shot, score, foul, rebound,
// moves, stamina, and cross-possession bookkeeping.
func (g *game) runPossession() error {
	g.possession++
	offense, defense := g.offense(), g.defense()

	for _, ps := range append(offense.onCourt(), defense.onCourt()...) {
		ps.possessionsPlayed++
	}

	// 1. possession.pre: effects install the possession context.
	preEvent := map[string]any{
		"shot_probability_modifier":  0.0,
		"shot_value_modifier":        0.0,
		"extra_stamina_drain":        0.0,
		"three_point_bias":           0.0,
		"rim_bias":                   0.0,
		"turnover_modifier":          0.0,
		"random_ejection_probability": 0.0,
		"bonus_pass_count":           0.0,
	}
	preCtx, err := g.fire(effect.HookPossessionPre, preEvent, nil)
	if err != nil {
		return err
	}
	pctx := possessionContextFrom(preCtx.Event)
	if preCtx.BlockEvent {
		g.advanceClock(offense.strategy)
		g.endPossession(actionAtRim, "blocked")
		return nil
	}

	// 2. Defense scheme selection.
	scheme := g.selectScheme(defense)

	// 3. Matchup assignment.
	matchups := g.assignMatchups(offense, defense)

	// 4. Action selection.
	handler := g.selectHandler(offense)
	action := g.selectAction(handler, offense.strategy, pctx)

	clock := g.advanceClock(offense.strategy)

	// 5. Turnover check.
	turnoverProb := clamp(g.rules.BaseTurnoverRate+schemeTurnoverMod(scheme)+
		pctx.turnoverMod+max0(defense.strategy.DefensiveIntensity)*0.01, 0, 0.9)
	if g.rng.Float64() < turnoverProb {
		handler.box.Turnovers++
		if defender := matchups[handler.p.ID]; defender != nil {
			defender.box.Steals++
		}
		g.logEntry(PlayByPlayEntry{
			Quarter: g.quarter, Clock: clock, Possession: g.possession,
			TeamID: offense.t.ID, PlayerID: handler.p.ID, PlayerName: handler.p.Name,
			Action: action, Outcome: "turnover",
			HomeScore: g.home.score, AwayScore: g.away.score,
		})
		if err := g.finishPossession(offense, defense, scheme, pctx, action, "turnover", handler); err != nil {
			return err
		}
		return nil
	}

	// 6. Shot resolution.
	defender := matchups[handler.p.ID]
	prob := g.shotProbability(handler, defender, scheme, action, pctx)
	made := g.rng.Float64() < prob

	value := g.shotValue(action)
	outcome := "miss"
	points := 0
	if made {
		outcome = "make"
		points = value + int(pctx.shotValueMod)
		if pctx.bonusPassCount > 0 {
			points += pctx.bonusPassCount * g.rules.ValuePerBonusPass
		}
		if points < 0 {
			points = 0
		}
	}

	handler.box.FieldGoalsAttempted++
	if action == actionThreePoint {
		handler.box.ThreesAttempted++
	}

	// sim.shot.resolved: effects may rewrite points before crediting.
	shotEvent := map[string]any{
		"action":  action,
		"result":  outcome,
		"points":  float64(points),
		"scheme":  scheme,
		"team_id": offense.t.ID,
	}
	shotCtx, err := g.fire(effect.HookShotResolved, shotEvent, handler)
	if err != nil {
		return err
	}
	if !shotCtx.BlockEvent {
		if v, ok := numberField(shotCtx.Event, "points"); ok {
			points = int(v)
			if points < 0 {
				points = 0
			}
		}
	}

	// 7. Score crediting.
	if made {
		handler.box.FieldGoalsMade++
		if action == actionThreePoint {
			handler.box.ThreesMade++
		}
		g.creditPoints(offense, defense, handler, points)
	}

	g.logEntry(PlayByPlayEntry{
		Quarter: g.quarter, Clock: clock, Possession: g.possession,
		TeamID: offense.t.ID, PlayerID: handler.p.ID, PlayerName: handler.p.Name,
		Action: action, Outcome: outcome, Points: points,
		HomeScore: g.home.score, AwayScore: g.away.score,
	})

	// 8. Foul check.
	fouled, err := g.checkFoul(offense, defense, handler, defender, scheme, made, clock)
	if err != nil {
		return err
	}

	// 9. Rebound on a live miss.
	if !made && !fouled {
		g.contestRebound(offense, defense, clock)
	}

	if err := g.finishPossession(offense, defense, scheme, pctx, action, outcome, handler); err != nil {
		return err
	}
	return nil
}

// finishPossession runs the trailing pipeline steps shared by every outcome:
// moves, stamina, random ejections, the possession.post hook, and the
// cross-possession state updates.
func (g *game) finishPossession(offense, defense *teamState, scheme string, pctx possessionContext, action, outcome string, handler *playerState) error {
	if err := g.triggerMoves(action, outcome); err != nil {
		return err
	}
	if err := g.drainStamina(offense, defense, scheme, pctx); err != nil {
		return err
	}
	g.randomEjection(pctx)

	postCtx, err := g.fire(effect.HookPossessionPost, map[string]any{
		"action": action,
		"result": outcome,
	}, handler)
	if err != nil {
		return err
	}
	g.processEmitted(postCtx)

	g.endPossession(action, outcome)
	return nil
}

// endPossession updates cross-possession state and flips the ball unless an
// offensive rebound kept it.
func (g *game) endPossession(action, outcome string) {
	g.lastAction = action
	g.lastResult = outcome
	if outcome == "make" {
		g.consecutiveMakes++
		g.consecutiveMisses = 0
	} else if outcome == "miss" {
		g.consecutiveMisses++
		g.consecutiveMakes = 0
	}
	g.trackLead()
	if g.retainPossession {
		g.retainPossession = false
		return
	}
	g.homeHasBall = !g.homeHasBall
}

// advanceClock burns possession time off the quarter clock and returns the
// display clock.
func (g *game) advanceClock(strategy Strategy) string {
	seconds := (8 + g.rng.Float64()*16) * strategy.paceMultiplier()
	g.quarterClock -= seconds / 60
	if g.quarterClock < 0 {
		g.quarterClock = 0
	}
	if g.elamActive {
		return "ELAM"
	}
	remaining := int(g.quarterClock * 60)
	return fmt.Sprintf("Q%d %02d:%02d", g.quarter, remaining/60, remaining%60)
}

func possessionContextFrom(event map[string]any) possessionContext {
	get := func(key string) float64 {
		v, _ := numberField(event, key)
		return v
	}
	return possessionContext{
		shotProbabilityMod: get("shot_probability_modifier"),
		shotValueMod:       get("shot_value_modifier"),
		extraStaminaDrain:  get("extra_stamina_drain"),
		threePointBias:     get("three_point_bias"),
		rimBias:            get("rim_bias"),
		turnoverMod:        get("turnover_modifier"),
		randomEjectionProb: get("random_ejection_probability"),
		bonusPassCount:     int(get("bonus_pass_count")),
	}
}

// selectScheme picks the defensive scheme, weighted by defender attributes
// and the governance-provided defensive intensity.
func (g *game) selectScheme(defense *teamState) string {
	var defSum, speedSum, iqSum float64
	court := defense.onCourt()
	for _, ps := range court {
		defSum += ps.defense
		speedSum += ps.speed
		iqSum += ps.iq
	}
	n := float64(len(court))
	if n == 0 {
		n = 1
	}
	weights := []weighted{
		{schemeManTight, 3 + defSum/n/25},
		{schemeManSwitch, 2 + speedSum/n/25},
		{schemeZone, 2 + iqSum/n/25},
		{schemePress, 1 + max0(defense.strategy.DefensiveIntensity)},
	}
	return g.weightedPick(weights)
}

// assignMatchups minimizes defense-vs-scoring cost over all defender
// permutations, with a small stochastic perturbation.
func (g *game) assignMatchups(offense, defense *teamState) map[string]*playerState {
	attackers := offense.onCourt()
	defenders := defense.onCourt()
	matchups := make(map[string]*playerState)
	if len(attackers) == 0 || len(defenders) == 0 {
		return matchups
	}

	cost := make([][]float64, len(defenders))
	for i, d := range defenders {
		cost[i] = make([]float64, len(attackers))
		for j, a := range attackers {
			diff := d.defense - a.effectiveScoring()
			if diff < 0 {
				diff = -diff
			}
			cost[i][j] = diff + g.rng.Float64()*5
		}
	}

	n := len(defenders)
	if len(attackers) < n {
		n = len(attackers)
	}
	best := make([]int, n)
	bestCost := -1.0
	perm := make([]int, len(defenders))
	for i := range perm {
		perm[i] = i
	}
	permute(perm, 0, func(p []int) {
		total := 0.0
		for j := 0; j < n; j++ {
			total += cost[p[j]][j]
		}
		if bestCost < 0 || total < bestCost {
			bestCost = total
			copy(best, p[:n])
		}
	})
	for j := 0; j < n; j++ {
		matchups[attackers[j].p.ID] = defenders[best[j]]
	}
	return matchups
}

func permute(values []int, k int, visit func([]int)) {
	if k == len(values) {
		visit(values)
		return
	}
	for i := k; i < len(values); i++ {
		values[k], values[i] = values[i], values[k]
		permute(values, k+1, visit)
		values[k], values[i] = values[i], values[k]
	}
}

// selectHandler picks the ball handler, weighted by scoring and ego.
func (g *game) selectHandler(offense *teamState) *playerState {
	court := offense.onCourt()
	weights := make([]weighted, 0, len(court))
	for _, ps := range court {
		w := ps.effectiveScoring() + float64(ps.p.Base.Ego)/2
		switch ps.p.Archetype {
		case player.ArchetypeSlasher, player.ArchetypeSniper:
			w += 5
		}
		weights = append(weights, weighted{ps.p.ID, w})
	}
	return offense.byID(g.weightedPick(weights))
}

// selectAction picks the shot action, weighted by archetype, strategy
// biases, and effect-provided biases. Every weight clamps to at least 1.
func (g *game) selectAction(handler *playerState, strategy Strategy, pctx possessionContext) string {
	rim := 10 + strategy.RimBias*10 + pctx.rimBias*10
	mid := 10.0
	three := 8 + strategy.ThreePointBias*10 + pctx.threePointBias*10
	drive := 8 + handler.speed/20
	post := 6.0

	switch handler.p.Archetype {
	case player.ArchetypeSlasher:
		rim += 6
		drive += 4
	case player.ArchetypeSniper:
		three += 8
	case player.ArchetypePlaymaker:
		mid += 3
	case player.ArchetypeEnforcer:
		post += 6
	case player.ArchetypeWildcard:
		chaos := float64(handler.p.Base.ChaoticAlignment) / 25
		rim += chaos
		three += chaos
	}

	weights := []weighted{
		{actionAtRim, rim},
		{actionMidRange, mid},
		{actionThreePoint, three},
		{actionDrive, drive},
		{actionPostUp, post},
	}
	for i := range weights {
		if weights[i].weight < 1 {
			weights[i].weight = 1
		}
	}
	return g.weightedPick(weights)
}

// shotProbability implements the logistic shot model with contest, IQ, and
// stamina factors, clamped to [0.01, 0.99].
func (g *game) shotProbability(handler, defender *playerState, scheme, action string, pctx possessionContext) float64 {
	midpoint := g.shotMidpoint(action)
	base := logistic(handler.effectiveScoring(), midpoint, g.rules.ShotSteepness)

	contest := 1.0
	if defender != nil {
		contest = 1 - g.rules.ContestFactor*(defender.defense/100)*schemeContestMod(scheme)
	}
	iqMod := 1 + (handler.iq-50)/500
	staminaMod := 0.7 + 0.3*handler.stamina

	prob := base*contest*iqMod*staminaMod + pctx.shotProbabilityMod + handler.possessionShotMod
	handler.possessionShotMod = 0
	return clamp(prob, 0.01, 0.99)
}

func (g *game) shotMidpoint(action string) float64 {
	switch action {
	case actionAtRim:
		return g.rules.ShotMidpointAtRim
	case actionDrive:
		return g.rules.ShotMidpointAtRim + 5
	case actionPostUp:
		return g.rules.ShotMidpointMidRange - 5
	case actionThreePoint:
		return g.rules.ShotMidpointThree
	}
	return g.rules.ShotMidpointMidRange
}

func (g *game) shotValue(action string) int {
	if action == actionThreePoint {
		return g.rules.ThreePointValue
	}
	return g.rules.TwoPointValue
}

// creditPoints applies points to the offense score, the handler's line, and
// both lineups' plus/minus.
func (g *game) creditPoints(offense, defense *teamState, scorer *playerState, points int) {
	if points <= 0 {
		return
	}
	offense.score += points
	scorer.box.Points += points
	for _, ps := range offense.onCourt() {
		ps.plusMinus += points
	}
	for _, ps := range defense.onCourt() {
		ps.plusMinus -= points
	}
}

// checkFoul resolves step 8: the foul draw and the resulting free throws.
func (g *game) checkFoul(offense, defense *teamState, handler, defender *playerState, scheme string, made bool, clock string) (bool, error) {
	foulProb := g.rules.BaseFoulRate + schemeFoulMod(scheme) +
		max0(defense.strategy.DefensiveIntensity)*0.02
	if g.rng.Float64() >= clamp(foulProb, 0, 0.9) {
		return false, nil
	}
	if defender == nil {
		return false, nil
	}

	defender.fouls++
	defense.fouls++

	foulCtx, err := g.fire(effect.HookFoulCommitted, map[string]any{
		"fouler_id": defender.p.ID,
		"fouled_id": handler.p.ID,
		"made_shot": made,
	}, handler)
	if err != nil {
		return false, err
	}
	if foulCtx.BlockEvent {
		defender.fouls--
		defense.fouls--
		return false, nil
	}

	attempts := g.rules.FreeThrowCount
	if made {
		attempts = 1
	}
	ftProb := clamp(g.rules.FreeThrowBasePct+(handler.scoring-50)*0.002, 0.05, 0.99)
	ftMade := 0
	for i := 0; i < attempts; i++ {
		handler.box.FreeThrowsAttempted++
		if g.rng.Float64() < ftProb {
			handler.box.FreeThrowsMade++
			ftMade++
			g.creditPoints(offense, defense, handler, g.rules.FreeThrowValue)
		}
	}
	g.logEntry(PlayByPlayEntry{
		Quarter: g.quarter, Clock: clock, Possession: g.possession,
		TeamID: offense.t.ID, PlayerID: handler.p.ID, PlayerName: handler.p.Name,
		Action: "free_throws", Outcome: fmt.Sprintf("%d/%d", ftMade, attempts),
		Points:    ftMade * g.rules.FreeThrowValue,
		HomeScore: g.home.score, AwayScore: g.away.score,
	})
	return true, nil
}

// contestRebound resolves step 9 on a missed live shot.
func (g *game) contestRebound(offense, defense *teamState, clock string) {
	var offSum, defSum float64
	for _, ps := range offense.onCourt() {
		offSum += ps.defense + ps.speed
	}
	for _, ps := range defense.onCourt() {
		defSum += ps.defense + ps.speed
	}
	offProb := clamp(g.rules.OffensiveReboundBase+(offSum-defSum)/500, 0.02, 0.8)

	rebCtx, err := g.fire(effect.HookReboundContested, map[string]any{
		"offensive_rebound_probability": offProb,
	}, nil)
	if err == nil {
		if v, ok := numberField(rebCtx.Event, "offensive_rebound_probability"); ok {
			offProb = clamp(v, 0, 1)
		}
	}

	rebounding := defense
	if g.rng.Float64() < offProb {
		rebounding = offense
		g.retainPossession = true
	}
	rebounder := g.pickRebounder(rebounding)
	if rebounder != nil {
		rebounder.box.Rebounds++
		outcome := "defensive_rebound"
		if rebounding == offense {
			outcome = "offensive_rebound"
		}
		g.logEntry(PlayByPlayEntry{
			Quarter: g.quarter, Clock: clock, Possession: g.possession,
			TeamID: rebounding.t.ID, PlayerID: rebounder.p.ID, PlayerName: rebounder.p.Name,
			Action: "rebound", Outcome: outcome,
			HomeScore: g.home.score, AwayScore: g.away.score,
		})
	}
}

func (g *game) pickRebounder(ts *teamState) *playerState {
	court := ts.onCourt()
	if len(court) == 0 {
		return nil
	}
	weights := make([]weighted, 0, len(court))
	for _, ps := range court {
		weights = append(weights, weighted{ps.p.ID, ps.defense + ps.speed/2})
	}
	return ts.byID(g.weightedPick(weights))
}

// triggerMoves evaluates every on-court player's moves against the current
// action and result, in a canonical order: home roster first, then away.
func (g *game) triggerMoves(action, result string) error {
	for _, ts := range []*teamState{g.home, g.away} {
		for _, ps := range ts.players {
			if !ps.onCourt {
				continue
			}
			for _, move := range ps.p.Moves {
				if !moveTriggerMatches(move.Trigger, action, result) {
					continue
				}
				if move.Trigger.Chance > 0 && g.rng.Float64() >= move.Trigger.Chance {
					continue
				}
				g.applyMoveEffect(ps, move)
				if _, err := g.fire(effect.HookMoveTriggered, map[string]any{
					"player_id": ps.p.ID,
					"move":      move.Name,
				}, ps); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func moveTriggerMatches(trigger player.MoveTrigger, action, result string) bool {
	if trigger.Action != "" && trigger.Action != "any" && trigger.Action != action {
		return false
	}
	if trigger.Result != "" && trigger.Result != "any" && trigger.Result != result {
		return false
	}
	return true
}

func (g *game) applyMoveEffect(ps *playerState, move player.Move) {
	switch move.Effect.Stat {
	case "scoring":
		if move.Effect.Duration == "game" {
			ps.scoring = clamp(ps.scoring+move.Effect.Amount, 1, 200)
		} else {
			ps.possessionShotMod += move.Effect.Amount / 100
		}
	case "defense":
		ps.defense = clamp(ps.defense+move.Effect.Amount, 1, 200)
	case "stamina":
		if move.Effect.Amount >= 0 {
			ps.recoverStamina(move.Effect.Amount)
		} else {
			ps.drainStamina(-move.Effect.Amount)
		}
	case "shot_probability":
		ps.possessionShotMod += move.Effect.Amount
	}
	if move.Effect.Narration != "" {
		g.narration = append(g.narration, move.Effect.Narration)
	}
}

// drainStamina applies step 11 to both lineups and recovers the benches. The
// computed per-possession drains pass through the stamina hook first, so
// registered effects can tune them before they land.
func (g *game) drainStamina(offense, defense *teamState, scheme string, pctx possessionContext) error {
	drain := g.rules.StaminaDrainBase + pctx.extraStaminaDrain
	offDrain := drain + g.rules.StaminaPaceDrain*(2-offense.strategy.paceMultiplier())
	defDrain := drain + schemeStaminaCost(scheme) +
		max0(defense.strategy.DefensiveIntensity)*g.rules.StaminaPaceDrain

	drainCtx, err := g.fire(effect.HookStaminaDrain, map[string]any{
		"offense_drain": offDrain,
		"defense_drain": defDrain,
	}, nil)
	if err != nil {
		return err
	}
	if v, ok := numberField(drainCtx.Event, "offense_drain"); ok {
		offDrain = max0(v)
	}
	if v, ok := numberField(drainCtx.Event, "defense_drain"); ok {
		defDrain = max0(v)
	}

	for _, ps := range offense.onCourt() {
		extra := 0.0
		if g.awayAtAltitude(offense) {
			extra = 0.005
		}
		ps.drainStamina(offDrain + extra)
	}
	for _, ps := range defense.onCourt() {
		extra := 0.0
		if g.awayAtAltitude(defense) {
			extra = 0.005
		}
		ps.drainStamina(defDrain + extra)
	}
	for _, ts := range []*teamState{g.home, g.away} {
		for _, ps := range ts.bench() {
			ps.recoverStamina(g.rules.BenchRecoveryPerPossession)
		}
	}
	return nil
}

// awayAtAltitude reports whether ts is the visiting team in a high-altitude
// venue.
func (g *game) awayAtAltitude(ts *teamState) bool {
	return ts == g.away && g.home.t.Venue.AltitudeMeters >= altitudeDrainThreshold
}

// randomEjection applies a hook-installed ejection probability to a random
// on-court player.
func (g *game) randomEjection(pctx possessionContext) {
	if pctx.randomEjectionProb <= 0 {
		return
	}
	if g.rng.Float64() >= pctx.randomEjectionProb {
		return
	}
	ts := g.home
	if g.rng.Float64() < 0.5 {
		ts = g.away
	}
	court := ts.onCourt()
	if len(court) == 0 {
		return
	}
	victim := court[g.rng.Intn(len(court))]
	ts.replaceEjected(victim)
	g.narration = append(g.narration, victim.p.Name+" is ejected")
}

// processEmitted turns hook sub-events into play-by-play lines.
func (g *game) processEmitted(ctx *effect.Context) {
	for _, sub := range ctx.Emitted {
		g.logEntry(PlayByPlayEntry{
			Quarter: g.quarter, Clock: "", Possession: g.possession,
			Action: sub.Name, Outcome: "effect",
			HomeScore: g.home.score, AwayScore: g.away.score,
		})
	}
	ctx.Emitted = nil
}

type weighted struct {
	key    string
	weight float64
}

// weightedPick draws one key with probability proportional to weight, using
// the game RNG. Entry order is part of the canonical draw order.
func (g *game) weightedPick(weights []weighted) string {
	total := 0.0
	for _, w := range weights {
		if w.weight > 0 {
			total += w.weight
		}
	}
	if total <= 0 {
		return weights[0].key
	}
	draw := g.rng.Float64() * total
	for _, w := range weights {
		if w.weight <= 0 {
			continue
		}
		draw -= w.weight
		if draw < 0 {
			return w.key
		}
	}
	return weights[len(weights)-1].key
}

func logistic(x, midpoint, steepness float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(x-midpoint)))
}

func schemeContestMod(scheme string) float64 {
	switch scheme {
	case schemeManTight:
		return 1.2
	case schemeZone:
		return 0.9
	case schemePress:
		return 0.8
	}
	return 1.0
}

func schemeTurnoverMod(scheme string) float64 {
	switch scheme {
	case schemePress:
		return 0.05
	case schemeManTight:
		return 0.02
	case schemeZone:
		return -0.01
	}
	return 0
}

func schemeFoulMod(scheme string) float64 {
	switch scheme {
	case schemePress:
		return 0.06
	case schemeManTight:
		return 0.03
	case schemeZone:
		return -0.02
	}
	return 0
}

func schemeStaminaCost(scheme string) float64 {
	switch scheme {
	case schemePress:
		return 0.015
	case schemeManTight:
		return 0.008
	}
	return 0.004
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
