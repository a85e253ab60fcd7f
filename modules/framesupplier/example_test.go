package framesupplier_test

import (
	"context"
	"fmt"

	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/framesupplier"
)

// A burst of four arrivals with nobody pulling keeps the two freshest.
func Example() {
	sup := framesupplier.New()
	defer sup.Close()

	for seq := uint64(1); seq <= 4; seq++ {
		sup.Publish(frame.NewOwned(seq, 1, 1, []byte{0, 0, 0, 255}))
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		f, err := sup.Next(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("seq", f.Seq)
		f.Release()
	}

	st := sup.Stats()
	fmt.Println("arrivals", st.Arrivals, "dropped", st.Dropped)
	// Output:
	// seq 3
	// seq 4
	// arrivals 4 dropped 2
}
