package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/sharing"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

var (
	sharePermission   string
	shareParticipants []string
)

func init() {
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(unshareCmd)
	rootCmd.AddCommand(syncCmd)

	shareCmd.Flags().StringVar(&sharePermission, "permission", "read-only", "public permission: none, read-only or read-write")
	shareCmd.Flags().StringSliceVar(&shareParticipants, "participant", nil, "user to invite as user[:ro|rw], repeatable")
}

func companyRecord(ctx context.Context, arg string) (store.CompanyRecord, error) {
	id, err := parseID(arg)
	if err != nil {
		return store.CompanyRecord{}, err
	}
	companies, err := loadCompanies(ctx)
	if err != nil {
		return store.CompanyRecord{}, err
	}
	company, err := findCompany(companies, id)
	if err != nil {
		return store.CompanyRecord{}, err
	}
	rec, ok := companies.Record(company)
	if !ok {
		return store.CompanyRecord{}, errNoMatch("company", id)
	}
	return rec, nil
}

func parseParticipants(values []string) ([]mshare.Participant, error) {
	out := make([]mshare.Participant, 0, len(values))
	for _, v := range values {
		p := mshare.Participant{UserID: v, Permission: mshare.PermissionReadOnly}
		if i := strings.LastIndex(v, ":"); i >= 0 {
			perm, ok := mshare.ParsePermission(v[i+1:])
			if !ok {
				return nil, errmap.New(errmap.CodeInvalidInput, fmt.Sprintf("unknown permission in %q", v), nil)
			}
			p.UserID, p.Permission = v[:i], perm
		}
		out = append(out, p)
	}
	return out, nil
}

func startSession(ctx context.Context, rec store.CompanyRecord) (*sharing.Session, *mshare.Share, error) {
	if _, err := application.Sharing.Share(ctx, rec); err != nil {
		return nil, nil, err
	}
	p, err := workflow.wait(ctx)
	if err != nil {
		return nil, nil, err
	}
	return p.session, p.share, nil
}

var shareCmd = &cobra.Command{
	Use:   "share [company-id]",
	Short: "Share one of your companies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		perm, ok := mshare.ParsePermission(sharePermission)
		if !ok {
			return errmap.New(errmap.CodeInvalidInput, fmt.Sprintf("unknown permission %q", sharePermission), nil)
		}
		participants, err := parseParticipants(shareParticipants)
		if err != nil {
			return err
		}
		rec, err := companyRecord(ctx, args[0])
		if err != nil {
			return err
		}

		session, existing, err := startSession(ctx, rec)
		if err != nil {
			return err
		}
		share, err := session.Prepare(ctx, perm, participants)
		if err != nil {
			_ = session.Abandon()
			return err
		}
		if existing != nil {
			for _, p := range participants {
				if _, found := share.Participant(p.UserID); !found {
					share.Participants = append(share.Participants, p)
				}
			}
		}
		if err := session.DidSaveShare(ctx, share); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "shared %s as %s with %d participant(s)\n", rec.ID, share.ID, len(share.Participants))
		return nil
	},
}

var unshareCmd = &cobra.Command{
	Use:   "unshare [company-id]",
	Short: "Stop sharing one of your companies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rec, err := companyRecord(ctx, args[0])
		if err != nil {
			return err
		}
		session, existing, err := startSession(ctx, rec)
		if err != nil {
			return err
		}
		if existing == nil {
			_ = session.Abandon()
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not shared\n", rec.ID)
			return nil
		}
		return session.DidStopSharing(ctx)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the sync service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return application.Sharing.Synchronize(cmd.Context())
	},
}
