package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/appraisal/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then nothing counts as seen", func() {
				So(d, ShouldNotBeNil)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When seeding it with processed ids", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithSeed("a", "b"))

			Convey("Then they count as seen", func() {
				So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeFalse)
			})
		})

		Convey("When recording ids", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the id is new", func() {
				seen := d.SeenAndRecord(ctx, "asset-1")

				Convey("Then it should return false and record the id", func() {
					So(seen, ShouldBeFalse)
					So(d.SeenAndRecord(ctx, "asset-1"), ShouldBeTrue)
				})
			})

			Convey("And the id was already seen", func() {
				d.SeenAndRecord(ctx, "asset-1")
				seen := d.SeenAndRecord(ctx, "asset-1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
				})
			})
		})

		Convey("When many goroutines record the same ids", func() {
			d := dedupe.NewInMemoryDeduper()
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("asset-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each id is new exactly once", func() {
				So(fresh, ShouldEqual, 50)
			})
		})
	})
}

func TestUnique(t *testing.T) {
	Convey("Given a selection with duplicates and processed ids", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithSeed("b"))
		out := dedupe.Unique(ctx, d, []string{"a", "b", "", "c", "a", "d", "c"})

		Convey("Then first-seen order is kept and repeats are dropped", func() {
			So(out, ShouldResemble, []string{"a", "c", "d"})
		})

		Convey("And every returned id is now recorded", func() {
			So(dedupe.Unique(ctx, d, out), ShouldBeEmpty)
		})
	})
}
