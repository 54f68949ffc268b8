package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/repository"
	"github.com/psicometria/bat7-api/internal/service"
	"github.com/psicometria/bat7-api/pkg/listing"
)

type lister[T any] interface {
	List(ctx context.Context, q repository.Query) ([]T, int, error)
}

type sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (*service.SweepResult, error)
}

type detector interface {
	Detect(ctx context.Context) models.FeatureSet
}

type commands struct {
	out         io.Writer
	subjects    lister[models.Subject]
	sessions    lister[models.TestSession]
	features    detector
	maintenance sweeper
	retention   time.Duration
}

func (c *commands) run(ctx context.Context, name string, args []string) error {
	switch name {
	case "subjects":
		return c.listSubjects(ctx, args)
	case "sessions":
		return c.listSessions(ctx, args)
	case "sweep":
		return c.sweep(ctx, args)
	case "features":
		return c.detect(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return flag.ErrHelp
	}
	return fmt.Errorf("unknown command %q", name)
}

type filterFlags map[string]string

func (f filterFlags) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (f filterFlags) Set(raw string) error {
	field, value, ok := strings.Cut(raw, "=")
	if !ok || field == "" {
		return errors.New("filter must be field=value")
	}
	f[field] = value
	return nil
}

func (c *commands) listSubjects(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subjects", flag.ContinueOnError)
	fs.SetOutput(c.out)
	search := fs.String("search", "", "free text search")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", listing.DefaultPageSize, "page size")
	filters := filterFlags{}
	fs.Var(filters, "filter", "field=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	live := listing.NewLive[models.Subject](listing.NewEngine(
		listing.WithSearchFields("nombre", "apellido", "documento", "email"),
		listing.WithRangeFields("edad"),
	), listing.LiveConfig[models.Subject]{})
	defer live.Close()

	token := live.BeginLoad()
	rows, _, err := c.subjects.List(ctx, repository.Query{Sort: "apellido"})
	if err != nil {
		return err
	}
	live.CompleteLoad(token, rows)
	live.SetSearch(*search)
	for field, value := range filters {
		live.SetFilter(field, value)
	}
	live.Flush()

	items, pager := listing.Paginate(live.Result(), *page, *limit)
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Apellido", "Nombre", "Documento", "Institución", "Estado", "Edad"})
	now := time.Now()
	for _, s := range items {
		age := "-"
		if a := s.Age(now); a >= 0 {
			age = strconv.Itoa(a)
		}
		institution := "-"
		if s.InstitucionNombre != nil {
			institution = *s.InstitucionNombre
		}
		table.Append([]string{s.ID, s.Apellido, s.Nombre, s.Documento, institution, string(s.Estado), age})
	}
	table.Render()
	color.New(color.FgCyan).Fprintf(c.out, "page %d/%d, %d of %d subjects\n", pager.Page(), pager.TotalPages(), len(items), pager.Total())
	return nil
}

func (c *commands) listSessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(c.out)
	subject := fs.String("subject", "", "subject id")
	estado := fs.String("estado", "", "iniciado, finalizado or cancelado")
	limit := fs.Int("limit", 50, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filters := map[string]string{}
	if *subject != "" {
		filters["subject_id"] = *subject
	}
	if *estado != "" {
		filters["estado"] = *estado
	}
	rows, total, err := c.sessions.List(ctx, repository.Query{Filters: filters, Sort: "fecha_inicio", Desc: true, Limit: *limit})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Evaluado", "Nivel", "Estado", "Inicio", "Fin"})
	for _, s := range rows {
		name := s.SubjectID
		if s.SubjectNombre != nil {
			name = *s.SubjectNombre
		}
		end := "-"
		if s.FechaFin != nil {
			end = s.FechaFin.Local().Format("2006-01-02 15:04")
		}
		table.Append([]string{s.ID, name, string(s.Nivel), string(s.Estado), s.FechaInicio.Local().Format("2006-01-02 15:04"), end})
	}
	table.Render()
	color.New(color.FgCyan).Fprintf(c.out, "%d of %d sessions\n", len(rows), total)
	return nil
}

func (c *commands) sweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(c.out)
	olderThan := fs.Duration("older-than", c.retention, "delete cancelled sessions older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := c.maintenance.Sweep(ctx, *olderThan)
	if err != nil {
		return err
	}
	if result.SessionsExpired > 0 {
		color.New(color.FgYellow).Fprintf(c.out, "cancelled %d expired sessions\n", result.SessionsExpired)
	}
	color.New(color.FgGreen).Fprintf(c.out, "deleted %d cancelled sessions started before %s\n",
		result.SessionsDeleted, result.Cutoff.Local().Format(time.RFC3339))
	return nil
}

func (c *commands) detect(ctx context.Context) error {
	set := c.features.Detect(ctx)
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Relation", "Available"})
	for _, relation := range service.OptionalRelations {
		mark := color.RedString("no")
		if set.Available(relation) {
			mark = color.GreenString("yes")
		}
		table.Append([]string{relation, mark})
	}
	table.Render()
	return nil
}
