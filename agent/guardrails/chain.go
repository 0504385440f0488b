package guardrails

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ValidatorChain 验证器链
// 按优先级顺序执行多个验证器，遇到第一个失败立即停止
type ValidatorChain struct {
	validators []Validator
	mu         sync.RWMutex
}

// NewValidatorChain 创建验证器链
func NewValidatorChain(validators ...Validator) *ValidatorChain {
	c := &ValidatorChain{}
	c.Add(validators...)
	return c
}

// Name 返回验证器链名称
func (c *ValidatorChain) Name() string {
	return "validator_chain"
}

// Priority 返回验证器链优先级
func (c *ValidatorChain) Priority() int {
	return 0
}

// Add 添加验证器到链中
func (c *ValidatorChain) Add(validators ...Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.validators = append(c.validators, validators...)
	sortValidatorsByPriority(c.validators)
}

// Validators 返回按优先级排序的验证器列表
func (c *ValidatorChain) Validators() []Validator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Validator, len(c.validators))
	copy(out, c.validators)
	return out
}

// Len 返回验证器数量
func (c *ValidatorChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.validators)
}

// Validate 执行验证器链
// 实现 Validator 接口，因此链可以嵌套
func (c *ValidatorChain) Validate(ctx context.Context, content string) (*ValidationResult, error) {
	validators := c.Validators()

	result := NewValidationResult()
	executed := make([]string, 0, len(validators))

	for _, v := range validators {
		if err := ctx.Err(); err != nil {
			result.AddError(ValidationError{
				Code:     ErrCodeValidationFailed,
				Message:  MsgValidationUnavailable,
				Severity: SeverityMedium,
			})
			result.Metadata["validators_executed"] = executed
			return result, err
		}

		executed = append(executed, v.Name())
		vResult, err := v.Validate(ctx, content)
		if err != nil {
			// 原始错误只返回给调用方记录日志，不进入提示语
			result.AddError(ValidationError{
				Code:     ErrCodeValidationFailed,
				Message:  MsgValidationUnavailable,
				Severity: SeverityCritical,
			})
			result.Metadata["failed_validator"] = v.Name()
			result.Metadata["validators_executed"] = executed
			return result, fmt.Errorf("validator %s: %w", v.Name(), err)
		}

		result.Merge(vResult)
		if !vResult.Valid {
			result.Metadata["failed_validator"] = v.Name()
			break
		}
	}

	result.Metadata["validators_executed"] = executed
	return result, nil
}

// sortValidatorsByPriority 按优先级稳定排序（数字越小越先执行）
func sortValidatorsByPriority(validators []Validator) {
	sort.SliceStable(validators, func(i, j int) bool {
		return validators[i].Priority() < validators[j].Priority()
	})
}
