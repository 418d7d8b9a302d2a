package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/taxflow/internal/model"
)

// paymentAliases позволяет указывать способ оплаты латиницей.
var paymentAliases = map[string]model.PaymentMethod{
	"cash":     model.PaymentCash,
	"cheque":   model.PaymentCheque,
	"check":    model.PaymentCheque,
	"transfer": model.PaymentBankTransfer,
}

func parsePaymentMethod(s string) model.PaymentMethod {
	if m, ok := paymentAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m
	}
	return model.PaymentMethod(s)
}

// parseTaxDetails разбирает значения вида NAME=AMOUNT; пустая сумма означает «не рассчитано».
func parseTaxDetails(values []string) ([]model.TaxDetail, error) {
	details := make([]model.TaxDetail, 0, len(values))
	for _, v := range values {
		name, raw, _ := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("tax %q: name is empty", v)
		}
		td := model.TaxDetail{Name: name}
		if raw = strings.TrimSpace(raw); raw != "" {
			amount, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("tax %q: invalid amount: %w", v, err)
			}
			td.Amount = &amount
		}
		details = append(details, td)
	}
	return details, nil
}

func dossierCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dossier", Short: "Manage tax dossiers"}
	cmd.AddCommand(dossierListCmd())
	cmd.AddCommand(dossierShowCmd())
	cmd.AddCommand(dossierCreateCmd())
	cmd.AddCommand(dossierCalculateCmd())
	cmd.AddCommand(dossierPayCmd())
	cmd.AddCommand(dossierCancelCmd())
	cmd.AddCommand(dossierDeleteCmd())
	return cmd
}

func dossierListCmd() *cobra.Command {
	var page model.Page
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dossiers, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().ListDossiers(cmd.Context(), page)
			if err != nil {
				return err
			}
			if err := render(res, dossierTable(res.Items)); err != nil {
				return err
			}
			printTotal(len(res.Items), res.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "page offset")
	return cmd
}

func dossierShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one dossier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newClient().GetDossier(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(d, dossierDetails(d))
		},
	}
}

func dossierCreateCmd() *cobra.Command {
	var in model.NewDossier
	var taxes []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a dossier (intake desk)",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := parseTaxDetails(taxes)
			if err != nil {
				return err
			}
			in.TaxDetails = details
			d, err := newClient().CreateDossier(cmd.Context(), in)
			if err != nil {
				return err
			}
			return render(d, dossierDetails(d))
		},
	}
	cmd.Flags().StringVar(&in.TaxpayerName, "taxpayer", "", "taxpayer name")
	cmd.Flags().StringVar(&in.TaxPeriod, "period", "", "tax period")
	cmd.Flags().StringArrayVar(&taxes, "tax", nil, "tax line NAME or NAME=AMOUNT (repeatable)")
	_ = cmd.MarkFlagRequired("taxpayer")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func dossierCalculateCmd() *cobra.Command {
	var taxes []string
	cmd := &cobra.Command{
		Use:   "calculate <id>",
		Short: "Store calculated tax amounts (management)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := parseTaxDetails(taxes)
			if err != nil {
				return err
			}
			d, err := newClient().CalculateDossier(cmd.Context(), args[0], details)
			if err != nil {
				return err
			}
			return render(d, dossierDetails(d))
		},
	}
	cmd.Flags().StringArrayVar(&taxes, "tax", nil, "tax line NAME=AMOUNT (repeatable)")
	_ = cmd.MarkFlagRequired("tax")
	return cmd
}

func dossierPayCmd() *cobra.Command {
	var method string
	var p model.Payment
	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Record payment (cashier)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Method = parsePaymentMethod(method)
			d, err := newClient().PayDossier(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return render(d, dossierDetails(d))
		},
	}
	cmd.Flags().StringVar(&method, "method", "cash", "payment method: cash, cheque or transfer")
	cmd.Flags().StringVar(&p.BankName, "bank", "", "bank name")
	cmd.Flags().StringVar(&p.ChequeNumber, "cheque-number", "", "cheque number")
	cmd.Flags().StringVar(&p.BankTransferRef, "transfer-ref", "", "bank transfer reference")
	return cmd
}

func dossierCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a dossier (division head)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newClient().CancelDossier(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return render(d, dossierDetails(d))
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func dossierDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dossier (division head)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteDossier(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}
