package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/taxflow/internal/model"
)

// roleAliases позволяет указывать роль латиницей.
var roleAliases = map[string]model.Role{
	"intake":     model.RoleIntake,
	"management": model.RoleManagement,
	"cashier":    model.RoleCashier,
	"head":       model.RoleDivisionHead,
}

func parseRole(s string) model.Role {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return model.Role(s)
}

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Manage resource orders"}
	cmd.AddCommand(orderListCmd())
	cmd.AddCommand(orderCreateCmd())
	cmd.AddCommand(orderTransitionCmd("deliver", "Mark an order delivered (requester)", func(c *cobra.Command, id string) (*model.ResourceOrder, error) {
		return newClient().DeliverResourceOrder(c.Context(), id)
	}))
	cmd.AddCommand(orderTransitionCmd("receive", "Confirm receipt of an order (target division)", func(c *cobra.Command, id string) (*model.ResourceOrder, error) {
		return newClient().ReceiveResourceOrder(c.Context(), id)
	}))
	return cmd
}

func orderListCmd() *cobra.Command {
	var page model.Page
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible resource orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().ListResourceOrders(cmd.Context(), page)
			if err != nil {
				return err
			}
			return render(res, orderTable(res.Items))
		},
	}
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "page offset")
	return cmd
}

func orderCreateCmd() *cobra.Command {
	var in model.NewResourceOrder
	var target string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request resources for a division",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.TargetDivision = parseRole(target)
			o, err := newClient().CreateResourceOrder(cmd.Context(), in)
			if err != nil {
				return err
			}
			return render(o, orderTable([]model.ResourceOrder{*o}))
		},
	}
	cmd.Flags().StringVar(&in.ResourceType, "type", "", "resource type")
	cmd.Flags().IntVar(&in.Quantity, "quantity", 0, "quantity")
	cmd.Flags().StringVar(&in.Unit, "unit", "", "unit")
	cmd.Flags().StringVar(&target, "target", "", "target division: intake, management, cashier or head")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	return cmd
}

func orderTransitionCmd(use, short string, fn func(*cobra.Command, string) (*model.ResourceOrder, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := fn(cmd, args[0])
			if err != nil {
				return err
			}
			return render(o, orderTable([]model.ResourceOrder{*o}))
		},
	}
}

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "message", Short: "Inter-division messages"}

	var box string
	list := &cobra.Command{
		Use:   "list",
		Short: "List inbox or sent messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := newClient().ListMessages(cmd.Context(), model.Mailbox(box))
			if err != nil {
				return err
			}
			return render(msgs, messageTable(msgs))
		},
	}
	list.Flags().StringVar(&box, "box", "", "inbox or sent (default depends on role)")

	send := &cobra.Command{
		Use:   "send <content>",
		Short: "Broadcast a message to the other divisions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := newClient().SendMessage(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return render(msgs, messageTable(msgs))
		},
	}

	confirm := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Confirm reading a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newClient().ConfirmMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(m, messageTable([]model.Message{*m}))
		},
	}

	cmd.AddCommand(list, send, confirm)
	return cmd
}

func auditCmd() *cobra.Command {
	var page model.Page
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log (division head)",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().ListAuditLogs(cmd.Context(), page)
			if err != nil {
				return err
			}
			if err := render(res, auditTable(res.Items)); err != nil {
				return err
			}
			printTotal(len(res.Items), res.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "page offset")
	return cmd
}

func personnelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "personnel", Short: "Manage personnel records (division head)"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List personnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().ListPersonnel(cmd.Context())
			if err != nil {
				return err
			}
			return render(items, personnelTable(items))
		},
	}

	var in model.PersonnelInput
	var division string
	upsert := func(use, short string, args cobra.PositionalArgs, fn func(cmd *cobra.Command, args []string) (*model.Personnel, error)) *cobra.Command {
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				in.Division = parseRole(division)
				p, err := fn(cmd, args)
				if err != nil {
					return err
				}
				return render(p, personnelTable([]model.Personnel{*p}))
			},
		}
		c.Flags().StringVar(&in.Name, "name", "", "full name")
		c.Flags().StringVar(&division, "division", "", "division: intake, management, cashier or head")
		c.Flags().StringVar(&in.Affectation, "affectation", "", "affectation")
		return c
	}

	create := upsert("create", "Create a personnel record", cobra.NoArgs, func(cmd *cobra.Command, args []string) (*model.Personnel, error) {
		return newClient().CreatePersonnel(cmd.Context(), in)
	})
	update := upsert("update <id>", "Update a personnel record", cobra.ExactArgs(1), func(cmd *cobra.Command, args []string) (*model.Personnel, error) {
		return newClient().UpdatePersonnel(cmd.Context(), args[0], in)
	})

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a personnel record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeletePersonnel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, update, del)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage accounts"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := newClient().ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return render(users, userTable(users))
		},
	}

	var username, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account (division head)",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := newClient().RegisterUser(cmd.Context(), username, password, parseRole(role))
			if err != nil {
				return err
			}
			return render(u, userTable([]model.User{*u}))
		},
	}
	create.Flags().StringVarP(&username, "username", "u", "", "user name")
	create.Flags().StringVarP(&password, "password", "p", "", "password")
	create.Flags().StringVar(&role, "role", "", "role: intake, management, cashier or head")

	cmd.AddCommand(list, create)
	return cmd
}
