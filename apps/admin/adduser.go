package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type addUserOptions struct {
	name     string
	username string
	email    string
	roles    []string
	branch   string
	owner    bool
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var opts addUserOptions
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the one with the same username/email; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), opts, pwd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %q saved (id %s)\n", usr.Username, usr.ID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "", "the user's full name")
	flags.StringVarP(&opts.username, "username", "u", "", "the user's username")
	flags.StringVarP(&opts.email, "email", "e", "", "the user's email")
	flags.StringSliceVarP(&opts.roles, "role", "r", nil, "a role to grant, e.g. admin:principal (repeatable)")
	flags.StringVarP(&opts.branch, "branch", "b", "", "ID or code of the branch the user is confined to")
	flags.BoolVar(&opts.owner, "owner", false, "grant the owner role")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, opts addUserOptions, pwd string) (user.User, error) {
	uname := core.CleanString(opts.username, true /* lower */)
	email := core.CleanString(opts.email, true /* lower */)

	roles := make([]string, 0, len(opts.roles)+1)
	for _, role := range opts.roles {
		if !core.StringInSlice(role, user.AllRoles) {
			return user.User{}, errors.Errorf("unknown role %q", role)
		}
		roles = append(roles, role)
	}
	if opts.owner && !core.StringInSlice(user.RoleAdminOwner, roles) {
		roles = append(roles, user.RoleAdminOwner)
	}

	var branchID string
	if opts.branch != "" {
		br, err := findBranch(ctx, cli.branches, opts.branch)
		if err != nil {
			return user.User{}, err
		}
		branchID = br.ID
	}

	now := core.NowFunc()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	exists := err == nil
	if !exists {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, errors.Wrap(err, "finding user")
		}
		usr = user.User{ID: uuid.NewString(), Username: uname, Roles: []string{}, CreatedAt: now}
	}
	if opts.name != "" {
		usr.Name = core.CleanString(opts.name)
	}
	if usr.Name == "" {
		usr.Name = uname
	}
	if email != "" {
		usr.Email = email
	}
	if len(roles) > 0 {
		usr.Roles = roles
	}
	if opts.branch != "" {
		usr.BranchID = branchID
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "setting password")
	}

	if exists {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
		return usr, errors.Wrap(err, "updating user")
	}
	if err = cli.usrRepo.CheckUsernameUniqueness(ctx, usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}
	usr, err = cli.usrRepo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}
