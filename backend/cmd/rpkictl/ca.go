package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/lamassuiot/rpki-core/backend/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/spf13/cobra"
)

var (
	caType     string
	parentName string
)

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Certificate Authority management",
}

var caCreateACACmd = &cobra.Command{
	Use:   "create-aca NAME",
	Short: "Create the All Resources CA",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handle(cmd, services.CreateAllResourcesCACommand{Name: args[0]})
	},
}

var caCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a CA below an existing parent",
	Long: `Create a CA below an existing parent.

Types:
  root          Root CA below the All Resources CA
  intermediate  Intermediate CA
  hosted        Hosted member CA
  non-hosted    Member CA whose keys are held outside this engine`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := caByName(cmd, parentName)
		if err != nil {
			return err
		}

		var create services.Command
		switch strings.ToLower(caType) {
		case "root":
			create = services.CreateRootCACommand{Name: args[0], ParentID: parent.ID}
		case "intermediate":
			create = services.CreateIntermediateCACommand{Name: args[0], ParentID: parent.ID}
		case "hosted":
			create = services.CreateHostedCACommand{Name: args[0], ParentID: parent.ID}
		case "non-hosted":
			create = services.CreateNonHostedCACommand{Name: args[0], ParentID: parent.ID}
		default:
			return fmt.Errorf("unknown CA type %s", caType)
		}
		return handle(cmd, create)
	},
}

var caDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a CA and revoke what it holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ca, err := caByName(cmd, args[0])
		if err != nil {
			return err
		}
		return handle(cmd, services.DeleteCACommand{CA: ca.VersionedID()})
	},
}

var caListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every CA",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cas, err := svc.Queries.GetCAs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tPARENT\tVERSION")
		for _, ca := range cas {
			parent := "-"
			if ca.ParentID != nil {
				parent = fmt.Sprint(*ca.ParentID)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", ca.ID, ca.Name, ca.Type, parent, ca.Version)
		}
		return w.Flush()
	},
}

var caShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the key pairs and issued certificates of a CA",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ca, err := caByName(cmd, args[0])
		if err != nil {
			return err
		}

		keys, err := svc.Queries.GetKeyPairs(cmd.Context(), services.GetKeyPairsInput{CAID: ca.ID})
		if err != nil {
			return err
		}
		issued, err := svc.Queries.GetIssuedCertificates(cmd.Context(), services.GetIssuedCertificatesInput{CAID: ca.ID})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "%s (%s) version %d\n\n", ca.Name, ca.Type, ca.Version)
		fmt.Fprintln(w, "KEY\tSTATUS\tENGINE\tSKI")
		for _, kp := range keys {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kp.Name, kp.Status, kp.EngineID, displayKeyID(kp.SubjectKeyID))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "SERIAL\tSUBJECT KEY\tRESOURCES\tNOT AFTER")
		for _, cert := range issued {
			if cert.Embedded {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", displaySerial(cert.SerialNumber), displayKeyID(cert.SubjectKeyID), cert.Resources, cert.NotAfter.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

func displayKeyID(ski string) string {
	raw, err := hex.DecodeString(ski)
	if err != nil {
		return ski
	}
	return helpers.FormatHexWithColons(raw)
}

func displaySerial(serial string) string {
	n, err := helpers.ParseSerialNumberHex(serial)
	if err != nil {
		return serial
	}
	return helpers.SerialNumberToString(n)
}

func init() {
	caCreateCmd.Flags().StringVarP(&caType, "type", "t", "hosted", "CA type: root, intermediate, hosted or non-hosted")
	caCreateCmd.Flags().StringVarP(&parentName, "parent", "p", "", "name of the parent CA")
	_ = caCreateCmd.MarkFlagRequired("parent")

	caCmd.AddCommand(caCreateACACmd, caCreateCmd, caDeleteCmd, caListCmd, caShowCmd)
}

func caByName(cmd *cobra.Command, name string) (*models.CertificateAuthority, error) {
	ca, err := svc.Queries.GetCAByName(cmd.Context(), services.GetCAByNameInput{Name: name})
	if err != nil {
		return nil, fmt.Errorf("could not find CA %s: %w", name, err)
	}
	return ca, nil
}

func handle(cmd *cobra.Command, command services.Command) error {
	res, err := svc.Commands.Handle(cmd.Context(), command)
	if err != nil {
		return err
	}

	if !res.HasEffect {
		fmt.Println("no changes")
		return nil
	}

	for _, ev := range res.Events {
		fmt.Printf("%s\t%s\n", ev.Type, ev.Subject)
	}
	return nil
}
