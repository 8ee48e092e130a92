package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/config"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live market dashboard",
	Long: `Full-screen view of the market, your credits and market stats. Buy and
retire from the keyboard; transaction progress appears in the notification
pane. The market is reloaded when the dashboard opens, after every confirmed
transaction and on 'r'. Logs go to a file while the dashboard runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fileLogger()
		a, err := newApp(false)
		if err != nil {
			return err
		}
		if _, err := a.connected(cmd.Context()); err != nil {
			return err
		}
		return ui.RunDashboard(dashboardDeps(a.sessions, a.view, a.actions, a.notes,
			time.Duration(cfg.NoteTTL)*time.Second))
	},
}

func dashboardDeps(sessions *session.Manager, view *market.View, actions *market.Actions, notes *notify.Queue, noteTTL time.Duration) ui.DashboardDeps {
	return ui.DashboardDeps{
		Snapshot: view.Snapshot,
		Refresh: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
			defer cancel()
			return view.Refresh(ctx, market.ScopeAll)
		},
		Buy: func(ctx context.Context, c market.Credit) error {
			_, err := actions.Purchase(ctx, c.TokenID, c.Price)
			return err
		},
		Retire: func(ctx context.Context, c market.Credit) error {
			_, err := actions.Retire(ctx, c.TokenID)
			return err
		},
		Notifications:  notes.Items,
		Dismiss:        notes.Dismiss,
		Session:        sessions.Current,
		OnSnapshot:     view.Subscribe,
		OnNotification: notes.Subscribe,
		OnSession:      sessions.Subscribe,
		NoteTTL:        noteTTL,
	}
}
