// Command example walks through the versioning lifecycle end to end with
// an in-memory stack: author a course, sell it, keep editing, and show
// that the buyer still sees the content that existed at purchase time.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/skillstream/courseware/pkg/courseware"
	"github.com/skillstream/courseware/pkg/courseware/repo/memory"
	memorystorage "github.com/skillstream/courseware/pkg/courseware/storage/memory"
)

type Config struct {
	Verbose bool `env:"EXAMPLE_VERBOSE" env-default:"false"`
}

func main() {
	var config Config
	cleanenv.ReadEnv(&config)

	level := slog.LevelWarn
	if config.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	admin := uuid.New()
	svc, err := courseware.New(
		courseware.WithRepository(memory.New()),
		courseware.WithBlobStore("memory", memorystorage.New()),
		courseware.WithIdentity(courseware.NewStaticAdmins(admin)),
		courseware.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build service:", err)
		os.Exit(1)
	}

	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, courseware.CreateCourseRequest{
		Title:      "Practical Distributed Systems",
		PriceCents: 4900,
		CreatedBy:  admin,
	})
	must(err)
	fmt.Printf("created course %s at version %d\n", course.Title, course.CurrentVersion)

	// Authoring window: no enrollments yet, edits stay on version 1.
	videoA := addVideo(ctx, svc, course.ID, admin, "Lecture 1: Consensus")
	fmt.Printf("added %q in place (version %d)\n", videoA.Title, videoA.VersionNumber)

	// First sale fixes the learner's entitlement at version 1.
	learner := uuid.New()
	ent, err := svc.RecordPurchase(ctx, courseware.RecordPurchaseRequest{
		LearnerID: learner,
		CourseID:  course.ID,
	})
	must(err)
	fmt.Printf("learner purchased, entitled to version %d\n", ent.VersionNumber)

	// Post-sale edits fork.
	videoB := addVideo(ctx, svc, course.ID, admin, "Lecture 2: Replication")
	fmt.Printf("added %q, course forked to version %d\n", videoB.Title, videoB.VersionNumber)

	_, err = svc.RemoveContent(ctx, courseware.RemoveContentRequest{
		ContentID:   mustFind(ctx, svc, course.ID, videoB.VersionNumber, "Lecture 1: Consensus"),
		RequestedBy: admin,
	})
	must(err)

	course, err = svc.GetCourse(ctx, course.ID)
	must(err)
	fmt.Printf("after removal the course is on version %d\n", course.CurrentVersion)

	// The buyer still plays the original upload.
	grant, err := svc.PlaybackURL(ctx, learner, videoA.ID)
	must(err)
	fmt.Printf("learner access to %q: %s (url %s)\n", videoA.Title, grant.Decision.State, grant.URL)

	// A fresh visitor is prompted to purchase instead.
	visitor := uuid.New()
	decision, err := svc.ResolveAccess(ctx, visitor, videoA.ID)
	must(err)
	fmt.Printf("visitor access to %q: %s\n", videoA.Title, decision.State)
}

func addVideo(ctx context.Context, svc courseware.Service, courseID, admin uuid.UUID, title string) *courseware.ContentItem {
	ref, err := svc.UploadAsset(ctx, courseware.UploadAssetRequest{
		CourseID:    courseID,
		FileName:    strings.ReplaceAll(strings.ToLower(title), " ", "-") + ".mp4",
		ContentType: "video/mp4",
		Reader:      strings.NewReader("fake video bytes for " + title),
	})
	must(err)

	item, err := svc.AddContent(ctx, courseware.AddContentRequest{
		CourseID:    courseID,
		Kind:        courseware.ContentKindVideo,
		Title:       title,
		Blob:        *ref,
		DurationSec: 1800,
		RequestedBy: admin,
	})
	must(err)
	return item
}

// mustFind returns the id of the item with the given title in the
// version's active content.
func mustFind(ctx context.Context, svc courseware.Service, courseID uuid.UUID, versionNumber int, title string) uuid.UUID {
	contents, err := svc.ListVersionContent(ctx, courseware.ListVersionContentRequest{
		CourseID:      courseID,
		VersionNumber: versionNumber,
	})
	must(err)
	for _, c := range contents {
		if c.Item.Title == title {
			return c.Item.ID
		}
	}
	fmt.Fprintf(os.Stderr, "no item titled %q in version %d\n", title, versionNumber)
	os.Exit(1)
	return uuid.Nil
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
