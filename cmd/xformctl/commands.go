package main

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/xformflow/internal/models"
	"github.com/Lllllllleong/xformflow/internal/services"
	"github.com/spf13/cobra"
)

// withService wraps a command body that needs an open service.
func withService(opts *cliOptions, run func(cmd *cobra.Command, svc *services.XFormService, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := opts.open(cmd.Context(), opts.dsn)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		return run(cmd, svc, args)
	}
}

func getCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Print a form document record",
		Args:  cobra.ExactArgs(1),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			doc, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rec, err := doc.ToRecord()
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), opts.output, rec)
		}),
	}
}

func xmlCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "xml [id]",
		Short: "Print the submitted xml of a form document or submission error log",
		Args:  cobra.ExactArgs(1),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			ctx := cmd.Context()
			rec, err := svc.Store().Get(ctx, args[0])
			if err != nil {
				return err
			}
			var data []byte
			if models.DocType(rec.DocType()) == models.DocTypeSubmissionErrorLog {
				log, err := models.ErrorLogFromRecord(rec)
				if err != nil {
					return err
				}
				data, err = svc.ErrorLogXML(ctx, log)
				if err != nil {
					return err
				}
			} else {
				doc, err := svc.Resolve(rec)
				if err != nil {
					return err
				}
				data, err = svc.GetXML(ctx, doc)
				if err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}),
	}
}

func md5Cmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "md5 [id]",
		Short: "Print the md5 of a form document's xml",
		Args:  cobra.ExactArgs(1),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			doc, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sum, err := svc.XMLMD5(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		}),
	}
}

func tagsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tags [id]",
		Short: "Print the top level xml elements and their form values, in document order",
		Args:  cobra.ExactArgs(1),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			doc, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tags, err := svc.TopLevelTags(cmd.Context(), doc)
			if err != nil {
				return err
			}
			return printTags(cmd.OutOrStdout(), opts.output, tags)
		}),
	}
}

func metaCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "meta [id]",
		Short: "Print the cleaned metadata of a form document",
		Args:  cobra.ExactArgs(1),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			doc, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			md := doc.Metadata()
			if md == nil {
				return fmt.Errorf("document %s has no meta block", doc.ID)
			}
			return printValue(cmd.OutOrStdout(), opts.output, md)
		}),
	}
}

func archiveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive [id]",
		Short: "Archive a form document",
		Args:  cobra.ExactArgs(1),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			res, err := services.NewArchiverWithService(svc).Process(cmd.Context(), &models.ArchiveRequest{DocumentID: args[0]})
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), opts.output, res)
		}),
	}
}

func errorLogCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "errorlog [file] [message]",
		Short: "Store a file as a submission error log",
		Args:  cobra.ExactArgs(2),
		RunE: withService(opts, func(cmd *cobra.Command, svc *services.XFormService, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			log, err := svc.RecordSubmissionError(cmd.Context(), raw, args[1])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), opts.output, map[string]string{
				"documentId": log.ID,
				"md5":        log.MD5,
				"summary":    log.String(),
			})
		}),
	}
}
