package ledger

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llm-d/llm-d-batch-admission/internal/logging"
)

// checkInvariant asserts the ledger's core accounting invariant.
func checkInvariant(l *TokenLedger) {
	GinkgoHelper()
	s := l.Status()
	Expect(s.Used + s.Reserved).To(BeNumerically("<=", s.Total))
	Expect(s.Available).To(Equal(s.Total - s.Used - s.Reserved))
}

var _ = Describe("TokenLedger", func() {
	var l *TokenLedger

	BeforeEach(func() {
		var err error
		l, err = New(1000, WithLogger(logging.NewTestLogger()))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("rejects a zero budget", func() {
			_, err := New(0)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a negative budget", func() {
			_, err := New(-100)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Reserve", func() {
		It("accepts an estimate that fits the budget", func() {
			Expect(l.Reserve(0, 300)).To(BeTrue())
			Expect(l.ReservedTokens()).To(Equal(int64(300)))
			Expect(l.AvailableBudget()).To(Equal(int64(700)))
			Expect(l.ActiveBatches()).To(Equal(1))
			checkInvariant(l)
		})

		It("rejects a non-positive estimate without state change", func() {
			Expect(l.Reserve(0, 0)).To(BeFalse())
			Expect(l.Reserve(0, -50)).To(BeFalse())
			Expect(l.ReservedTokens()).To(BeZero())
			Expect(l.ActiveBatches()).To(BeZero())
		})

		It("rejects a duplicate reservation for a live batch", func() {
			Expect(l.Reserve(7, 200)).To(BeTrue())
			Expect(l.Reserve(7, 100)).To(BeFalse())
			Expect(l.ReservedTokens()).To(Equal(int64(200)))
			Expect(l.ActiveBatches()).To(Equal(1))
		})

		It("allows re-reserving an id after its release", func() {
			Expect(l.Reserve(7, 200)).To(BeTrue())
			l.Release(7)
			Expect(l.Reserve(7, 200)).To(BeTrue())
			Expect(l.ActiveBatches()).To(Equal(1))
			checkInvariant(l)
		})

		It("rejects an estimate that would over-commit the budget", func() {
			Expect(l.Reserve(0, 900)).To(BeTrue())
			Expect(l.Reserve(1, 200)).To(BeFalse())
			Expect(l.ReservedTokens()).To(Equal(int64(900)))
			checkInvariant(l)
		})

		It("accepts an estimate that exactly fills the budget", func() {
			Expect(l.Reserve(0, 1000)).To(BeTrue())
			Expect(l.AvailableBudget()).To(BeZero())
			checkInvariant(l)
		})

		It("counts used tokens against new reservations", func() {
			Expect(l.Reserve(0, 600)).To(BeTrue())
			l.Release(0)
			Expect(l.UsedTokens()).To(Equal(int64(600)))
			Expect(l.Reserve(1, 500)).To(BeFalse())
			Expect(l.Reserve(1, 400)).To(BeTrue())
			checkInvariant(l)
		})
	})

	Describe("Release", func() {
		It("moves the reserved estimate into used", func() {
			Expect(l.Reserve(3, 250)).To(BeTrue())
			l.Release(3)
			Expect(l.UsedTokens()).To(Equal(int64(250)))
			Expect(l.ReservedTokens()).To(BeZero())
			Expect(l.ActiveBatches()).To(BeZero())
			checkInvariant(l)
		})

		It("leaves the available budget unchanged across a reserve/release pair", func() {
			before := l.AvailableBudget()
			Expect(l.Reserve(3, 250)).To(BeTrue())
			l.Release(3)
			Expect(l.AvailableBudget()).To(Equal(before))
			Expect(l.UsedTokens()).To(Equal(int64(250)))
		})

		It("ignores a release for an unknown batch", func() {
			l.Release(42)
			Expect(l.UsedTokens()).To(BeZero())
			Expect(l.ReservedTokens()).To(BeZero())
		})

		It("ignores a second release of the same batch", func() {
			Expect(l.Reserve(3, 250)).To(BeTrue())
			l.Release(3)
			l.Release(3)
			Expect(l.UsedTokens()).To(Equal(int64(250)))
		})
	})

	Describe("UpdateBudget", func() {
		It("rejects a non-positive total", func() {
			Expect(l.UpdateBudget(0)).To(HaveOccurred())
			Expect(l.UpdateBudget(-5)).To(HaveOccurred())
			Expect(l.TotalBudget()).To(Equal(int64(1000)))
		})

		It("raises the ceiling for subsequent reservations", func() {
			Expect(l.Reserve(0, 1000)).To(BeTrue())
			Expect(l.Reserve(1, 500)).To(BeFalse())
			Expect(l.UpdateBudget(1500)).To(Succeed())
			Expect(l.Reserve(1, 500)).To(BeTrue())
			checkInvariant(l)
		})

		It("applies a total below current commitments without evicting", func() {
			Expect(l.Reserve(0, 800)).To(BeTrue())
			Expect(l.UpdateBudget(500)).To(Succeed())
			Expect(l.TotalBudget()).To(Equal(int64(500)))
			Expect(l.ReservedTokens()).To(Equal(int64(800)))
			Expect(l.AvailableBudget()).To(Equal(int64(-300)))
			// The in-flight reservation still commits normally.
			l.Release(0)
			Expect(l.UsedTokens()).To(Equal(int64(800)))
		})
	})

	Describe("Reset", func() {
		It("clears accounting but keeps the total", func() {
			Expect(l.Reserve(0, 300)).To(BeTrue())
			Expect(l.Reserve(1, 300)).To(BeTrue())
			l.Release(0)
			l.Reset()
			Expect(l.UsedTokens()).To(BeZero())
			Expect(l.ReservedTokens()).To(BeZero())
			Expect(l.ActiveBatches()).To(BeZero())
			Expect(l.TotalBudget()).To(Equal(int64(1000)))
			// Previously live ids are reservable again.
			Expect(l.Reserve(1, 300)).To(BeTrue())
		})
	})

	Describe("Status", func() {
		It("reports all counters in one snapshot", func() {
			Expect(l.Reserve(0, 300)).To(BeTrue())
			Expect(l.Reserve(1, 200)).To(BeTrue())
			l.Release(0)

			s := l.Status()
			Expect(s).To(Equal(BudgetStatus{
				Total:              1000,
				Used:               300,
				Reserved:           200,
				Available:          500,
				ActiveBatches:      1,
				UtilizationPercent: 50,
			}))
		})
	})

	Describe("end-to-end accounting", func() {
		It("runs the admission sequence through depletion", func() {
			Expect(l.Reserve(0, 300)).To(BeTrue())
			Expect(l.ReservedTokens()).To(Equal(int64(300)))

			Expect(l.Reserve(1, 300)).To(BeTrue())
			Expect(l.ReservedTokens()).To(Equal(int64(600)))

			Expect(l.Reserve(2, 500)).To(BeFalse())
			Expect(l.ReservedTokens()).To(Equal(int64(600)))

			l.Release(0)
			Expect(l.UsedTokens()).To(Equal(int64(300)))
			Expect(l.ReservedTokens()).To(Equal(int64(300)))

			Expect(l.Reserve(2, 400)).To(BeTrue())
			Expect(l.AvailableBudget()).To(BeZero())
			checkInvariant(l)
		})
	})

	Describe("concurrent access", func() {
		It("holds the invariant under racing reservations", func() {
			big, err := New(10_000)
			Expect(err).NotTo(HaveOccurred())

			var wg sync.WaitGroup
			for id := 0; id < 100; id++ {
				wg.Add(1)
				go func(batchID int) {
					defer wg.Done()
					if big.Reserve(batchID, 150) {
						big.Release(batchID)
					}
				}(id)
			}
			wg.Wait()

			s := big.Status()
			Expect(s.Reserved).To(BeZero())
			Expect(s.ActiveBatches).To(BeZero())
			// Each admitted batch committed exactly its estimate.
			Expect(s.Used % 150).To(BeZero())
			Expect(s.Used).To(BeNumerically("<=", s.Total))
		})
	})
})

type countingObserver struct {
	mu       sync.Mutex
	statuses []BudgetStatus
	rejected int
}

func (o *countingObserver) ObserveBudget(s BudgetStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *countingObserver) ObserveRejectedReservation() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected++
}

var _ = Describe("StatusObserver", func() {
	It("is notified of state changes and rejections", func() {
		obs := &countingObserver{}
		l, err := New(100, WithObserver(obs))
		Expect(err).NotTo(HaveOccurred())

		Expect(l.Reserve(0, 60)).To(BeTrue())
		Expect(l.Reserve(1, 60)).To(BeFalse())
		l.Release(0)

		Expect(obs.rejected).To(Equal(1))
		Expect(obs.statuses).To(HaveLen(2))
		last := obs.statuses[len(obs.statuses)-1]
		Expect(last.Used).To(Equal(int64(60)))
		Expect(last.Reserved).To(BeZero())
	})
})
