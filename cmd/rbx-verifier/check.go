package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
	"github.com/bigkaa/rbxverifier/internal/service"
)

var (
	checkBlacklistURL string
	checkOut          string
)

var checkCmd = &cobra.Command{
	Use:   "check <username>",
	Short: "Проверить один аккаунт и сохранить отчёт",
	Long: `Выполняет один прогон проверки и записывает отчёт в JSON-файл
(по умолчанию report_<id>.json в текущем каталоге).`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkBlacklistURL, "blacklist-url", "", "адрес дополнительного чёрного списка")
	checkCmd.Flags().StringVarP(&checkOut, "out", "o", "", "файл отчёта (по умолчанию report_<id>.json)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := a.verifier.Verify(ctx, args[0], checkBlacklistURL)
	if err != nil {
		return err
	}

	path := checkOut
	if path == "" {
		path = reportFileName(res.Report)
	}
	if err := writeReport(path, res.Report); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res)
	fmt.Fprintf(cmd.OutOrStdout(), "Отчёт сохранён: %s\n", path)
	return nil
}

// reportFileName — имя файла отчёта по умолчанию.
func reportFileName(r model.Report) string {
	return fmt.Sprintf("report_%d.json", r.UserID)
}

// writeReport записывает отчёт в файл с отступами.
func writeReport(path string, r model.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация отчёта: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // G306: отчёт не секретный
		return fmt.Errorf("запись отчёта %s: %w", path, err)
	}
	return nil
}

// printSummary печатает итог прогона в человекочитаемом виде.
func printSummary(w io.Writer, res *service.Result) {
	r := res.Report
	fmt.Fprintf(w, "%s (@%s, id %d): %s\n", r.DisplayName, r.Username, r.UserID, res.Status)
	fmt.Fprintf(w, "Группы: %d\n", r.GroupCount)
	if r.FriendCount != nil {
		fmt.Fprintf(w, "Друзья: %d\n", *r.FriendCount)
	} else {
		fmt.Fprintln(w, "Друзья: —")
	}
	if res.Blacklist.Outcome != "" {
		fmt.Fprintf(w, "Доп. чёрный список: %s (+%d)\n", res.Blacklist.Outcome, res.Blacklist.Added)
	}
	if len(r.InstantDismissals) > 0 {
		fmt.Fprintln(w, "Мгновенный отказ:")
		for _, d := range r.InstantDismissals {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	if len(r.RedFlags) > 0 {
		fmt.Fprintln(w, "Red flags:")
		for _, f := range r.RedFlags {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}
