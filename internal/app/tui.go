// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/portalctl/internal/auth"
	"github.com/jeranaias/portalctl/internal/session"
	"github.com/jeranaias/portalctl/internal/ui/dashboard"
	"github.com/jeranaias/portalctl/internal/ui/styles"
)

// =============================================================================
// TUI
// =============================================================================

// RunTUI runs the dashboard until the user quits or ctx is cancelled.
//
// Program.Send blocks until the event loop receives the message, and both
// controller listeners and the monitor callback can fire from inside Update,
// so every bridge below sends from its own goroutine.
func (a *App) RunTUI(ctx context.Context, theme *styles.Theme) error {
	if theme == nil {
		theme = styles.NewTheme()
	}

	model := dashboard.New(dashboard.Options{
		Context:          ctx,
		Controller:       a.Controller,
		Store:            a.Store,
		Monitor:          a.Monitor,
		Theme:            theme,
		BaseURL:          a.Client.BaseURL(),
		WarningThreshold: a.Config.WarningThreshold(),
		WarningPoll:      a.Config.WarningPoll(),
		ExtendKey:        a.Config.UI.ExtendKey,
	})

	popts := []tea.ProgramOption{tea.WithContext(ctx)}
	if a.Config.UI.AltScreen {
		popts = append(popts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, popts...)

	unsubscribe := a.Controller.Subscribe(func(st auth.State) {
		go p.Send(dashboard.StateMsg{State: st})
	})
	defer unsubscribe()

	expired := func(reason session.ExpiryReason) {
		go p.Send(dashboard.ExpiredMsg{Reason: reason})
	}
	a.Start(expired)
	defer a.Monitor.Destroy()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.Watch(watchCtx, expired); err != nil {
		a.Logger.Warn("cross-tab watch failed", zap.Error(err))
	}

	a.Logger.Info("dashboard started")
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	a.Logger.Info("dashboard stopped", zap.Error(err))
	return err
}
