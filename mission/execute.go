package mission

import (
	"context"
	"fmt"
	"time"

	"mobilepilot/agent"
	"mobilepilot/device"
)

const (
	longPressDuration = time.Second
	swipeDuration     = 500 * time.Millisecond
	maxWait           = 30 * time.Second
)

// executor maps parsed actions onto gateway calls.
type executor struct {
	gw       device.Gateway
	elements []device.Element
	size     device.Size
	sleep    func(time.Duration)
}

// run performs act and returns a short description of what was done.
// finish is not a device action and is handled by the runner.
func (e *executor) run(ctx context.Context, act *agent.Action) (string, error) {
	switch act.Kind {
	case agent.ActionTap:
		el, err := device.ElementAt(e.elements, act.Index)
		if err != nil {
			return "", err
		}
		c := el.Center()
		return fmt.Sprintf("tapped %s at (%d,%d)", el.Describe(), c.X, c.Y), e.gw.Tap(ctx, c)

	case agent.ActionLongPress:
		el, err := device.ElementAt(e.elements, act.Index)
		if err != nil {
			return "", err
		}
		c := el.Center()
		return fmt.Sprintf("long-pressed %s", el.Describe()), e.gw.LongPress(ctx, c, longPressDuration)

	case agent.ActionText:
		return fmt.Sprintf("typed %d character(s)", len([]rune(act.Text))), e.gw.TypeText(ctx, act.Text)

	case agent.ActionSwipe:
		dir, err := device.ParseDirection(act.Direction)
		if err != nil {
			return "", err
		}
		dist, err := device.ParseDistance(act.Distance)
		if err != nil {
			return "", err
		}
		from := device.Point{X: e.size.Width / 2, Y: e.size.Height / 2}
		if act.Index > 0 {
			el, err := device.ElementAt(e.elements, act.Index)
			if err != nil {
				return "", err
			}
			from = el.Center()
		}
		to := device.SwipeEnd(from, dir, dist, e.size)
		return fmt.Sprintf("swiped %s %s from (%d,%d)", dir, dist, from.X, from.Y), e.gw.Swipe(ctx, from, to, swipeDuration)

	case agent.ActionBack:
		return "navigated back", e.gw.Back(ctx)

	case agent.ActionHome:
		return "went to home screen", e.gw.Home(ctx)

	case agent.ActionLaunch:
		id := device.BundleID(act.App)
		if id == "" {
			return "", fmt.Errorf("launch: no app given")
		}
		return "launched " + id, e.gw.Launch(ctx, id)

	case agent.ActionWait:
		d := time.Duration(act.Seconds) * time.Second
		if d > maxWait {
			d = maxWait
		}
		if d > 0 {
			e.sleep(d)
		}
		return fmt.Sprintf("waited %s", d), nil

	case agent.ActionFinish:
		return "finish requested", nil
	}
	return "", fmt.Errorf("unsupported action %q", act.Kind)
}
