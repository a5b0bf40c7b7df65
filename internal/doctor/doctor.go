// Package doctor runs runtime readiness diagnostics for config, audio, and recognition.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/inkwell/internal/audio"
	"github.com/rbright/inkwell/internal/config"
	"github.com/rbright/inkwell/internal/hypr"
	"github.com/rbright/inkwell/internal/network"
	"github.com/rbright/inkwell/internal/recognition"
)

const endpointTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Channel is a closable gRPC channel.
type Channel interface {
	network.Channel
	Close() error
}

// Probes are the live checks. Zero fields use the real implementations.
type Probes struct {
	Resolve    func(context.Context, audio.Preference) (audio.Resolved, error)
	Microphone func(context.Context, audio.Preference) error
	Dial       func(endpoint string) (Channel, error)
	Hypr       func() error
}

func (p Probes) withDefaults() Probes {
	if p.Resolve == nil {
		p.Resolve = audio.Resolve
	}
	if p.Microphone == nil {
		p.Microphone = audio.ProbeMicrophone
	}
	if p.Dial == nil {
		p.Dial = func(endpoint string) (Channel, error) { return network.Dial(endpoint, false) }
	}
	if p.Hypr == nil {
		p.Hypr = hypr.Available
	}
	return p
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, provider recognition.Provider, probes Probes) Report {
	probes = probes.withDefaults()
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for the control socket", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkRecognition(provider))
	if strings.EqualFold(cfg.Indicator.Backend, config.IndicatorHypr) && cfg.Indicator.Enable {
		checks = append(checks, checkHypr(probes.Hypr))
	}

	pref := audio.Preference{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback}
	checks = append(checks, checkAudioSelection(ctx, pref, probes.Resolve))
	checks = append(checks, checkMicrophone(ctx, pref, probes.Microphone))

	if endpoint := cfg.WatchEndpoint(); endpoint != "" {
		checks = append(checks, checkEndpoint(ctx, endpoint, probes.Dial))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	for _, warning := range loaded.Warnings {
		if strings.Contains(warning.Message, "not found") {
			continue
		}
		message += "; warning: " + warning.Message
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkRecognition(provider recognition.Provider) Check {
	if provider == nil {
		return Check{Name: "recognition.support", Pass: false, Message: "no recognition backend configured"}
	}
	if !provider.Supported() {
		return Check{
			Name:    "recognition.support",
			Pass:    false,
			Message: fmt.Sprintf("%s backend is missing credentials or an audio source", provider.Name()),
		}
	}
	return Check{Name: "recognition.support", Pass: true, Message: fmt.Sprintf("%s backend ready", provider.Name())}
}

func checkHypr(available func() error) Check {
	if err := available(); err != nil {
		return Check{Name: "indicator.hypr", Pass: false, Message: err.Error()}
	}
	return Check{Name: "indicator.hypr", Pass: true, Message: "Hyprland session detected"}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(
	ctx context.Context,
	pref audio.Preference,
	resolve func(context.Context, audio.Preference) (audio.Resolved, error),
) Check {
	resolved, err := resolve(ctx, pref)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", resolved.Source.ID)
	if resolved.Warning != "" {
		message = message + " (" + resolved.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkMicrophone(ctx context.Context, pref audio.Preference, probe func(context.Context, audio.Preference) error) Check {
	if err := probe(ctx, pref); err != nil {
		return Check{Name: "audio.microphone", Pass: false, Message: fmt.Sprintf("microphone unavailable: %v", err)}
	}
	return Check{Name: "audio.microphone", Pass: true, Message: "record stream opened"}
}

// checkEndpoint waits briefly for the recognition endpoint channel to become ready.
func checkEndpoint(ctx context.Context, endpoint string, dial func(string) (Channel, error)) Check {
	ch, err := dial(endpoint)
	if err != nil {
		return Check{Name: "recognition.endpoint", Pass: false, Message: err.Error()}
	}
	defer ch.Close()

	waitCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()
	if err := network.WaitReady(waitCtx, ch); err != nil {
		return Check{Name: "recognition.endpoint", Pass: false, Message: fmt.Sprintf("%s: %v", endpoint, err)}
	}
	return Check{Name: "recognition.endpoint", Pass: true, Message: fmt.Sprintf("ready at %s", endpoint)}
}
