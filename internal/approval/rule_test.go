package approval_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/expenseflow/expenseflow/internal/user"
)

var _ = Describe("Rule", func() {
	Describe("Validate", func() {
		It("should accept an empty sequence", func() {
			rule := approval.DefaultRule(1)

			Expect(rule.Validate()).To(Succeed())
		})

		It("should accept contiguous steps with one routing key each", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence: []approval.Step{
					{Number: 1, Target: approval.ByRole(user.RoleManager)},
					{Number: 2, Target: approval.ByUser(7)},
					{Number: 3, Target: approval.ByRole(user.RoleAdmin)},
				},
			}

			Expect(rule.Validate()).To(Succeed())
		})

		It("should reject gapped step numbers", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence: []approval.Step{
					{Number: 1, Target: approval.ByRole(user.RoleManager)},
					{Number: 3, Target: approval.ByRole(user.RoleAdmin)},
				},
			}

			err := rule.Validate()

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidApprovalRule))
		})

		It("should reject a sequence not starting at 1", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence:  []approval.Step{{Number: 2, Target: approval.ByRole(user.RoleAdmin)}},
			}

			Expect(rule.Validate()).To(HaveOccurred())
		})

		It("should reject a step with both routing keys", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence: []approval.Step{
					{Number: 1, Target: approval.RouteTarget{Role: user.RoleAdmin, UserID: 7}},
				},
			}

			Expect(rule.Validate()).To(HaveOccurred())
		})

		It("should reject a step with no routing key", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence:  []approval.Step{{Number: 1}},
			}

			Expect(rule.Validate()).To(HaveOccurred())
		})

		It("should reject an unknown role", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence:  []approval.Step{{Number: 1, Target: approval.ByRole(user.Role("supervisor"))}},
			}

			Expect(rule.Validate()).To(HaveOccurred())
		})
	})

	Describe("Step JSON", func() {
		It("should prefer user_id when a stored step carries both keys", func() {
			var step approval.Step
			err := json.Unmarshal([]byte(`{"step":1,"role":"manager","user_id":42}`), &step)

			Expect(err).ToNot(HaveOccurred())
			Expect(step.Target.IsUser()).To(BeTrue())
			Expect(step.Target.UserID).To(Equal(int64(42)))
		})

		It("should round-trip a role step through the datamodel", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence:  []approval.Step{{Number: 1, Target: approval.ByRole(user.RoleAdmin)}},
			}

			dm, err := approval.ToDataModel(rule)
			Expect(err).ToNot(HaveOccurred())

			restored, err := approval.FromDataModel(dm)
			Expect(err).ToNot(HaveOccurred())
			Expect(restored.Sequence).To(HaveLen(1))
			Expect(restored.Sequence[0].Target.Role).To(Equal(user.RoleAdmin))
			Expect(restored.Sequence[0].Target.IsUser()).To(BeFalse())
		})
	})

	Describe("StepAt", func() {
		It("should return the step a claim waits on", func() {
			rule := &approval.Rule{
				CompanyID: 1,
				Sequence: []approval.Step{
					{Number: 1, Target: approval.ByRole(user.RoleManager)},
					{Number: 2, Target: approval.ByRole(user.RoleAdmin)},
				},
			}

			step, err := rule.StepAt(2)

			Expect(err).ToNot(HaveOccurred())
			Expect(step.Target.Role).To(Equal(user.RoleAdmin))
		})

		It("should error on out-of-range positions", func() {
			rule := approval.DefaultRule(1)

			_, err := rule.StepAt(1)

			Expect(err).To(HaveOccurred())
		})
	})
})
